package handlers

import (
	"net/http"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	images := "unavailable"
	if a.Images != nil && a.Images.Available() {
		images = "available"
	}
	musicProvider := ""
	if a.Music != nil {
		musicProvider = a.Music.Name()
	}
	a.json(w, http.StatusOK, map[string]string{
		"status": "ok",
		"images": images,
		"music":  musicProvider,
	})
}

type styleDTO struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

func (a *App) Styles(w http.ResponseWriter, r *http.Request) {
	list := a.Images.Styles().List()
	out := make([]styleDTO, 0, len(list))
	for _, s := range list {
		out = append(out, styleDTO{Key: s.Key, Description: s.Description})
	}
	a.json(w, http.StatusOK, out)
}
