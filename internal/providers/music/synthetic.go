package music

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"

	"createtree/internal/domain"
	"createtree/internal/infra"
)

const (
	syntheticProviderName = "synthetic"
	sampleRate            = 8000
	noteSeconds           = 0.5
	amplitude             = 0.25 * math.MaxInt16
)

// pentatonic scale around middle C; any sequence of these sounds calm.
var pentatonic = []float64{261.63, 293.66, 329.63, 392.00, 440.00, 523.25}

// SyntheticGenerator renders a soft sine-tone melody locally. It needs no
// credentials and is used in development or when no Suno key is configured.
type SyntheticGenerator struct {
	assets AssetStore
	logger infra.Logger
}

func NewSyntheticGenerator(assets AssetStore, logger *infra.Logger) *SyntheticGenerator {
	g := &SyntheticGenerator{assets: assets, logger: *infra.NopLogger()}
	if logger != nil {
		g.logger = *logger
	}
	return g
}

func (g *SyntheticGenerator) Name() string { return syntheticProviderName }

func (g *SyntheticGenerator) Generate(ctx context.Context, req Request, progress ProgressFunc) (*Track, error) {
	if g.assets == nil {
		return nil, errors.New("synthetic: no asset store configured")
	}
	duration := req.DurationSeconds
	if duration <= 0 {
		duration = domain.DefaultDurationSeconds
	}
	seed := deterministicSeed(req.RequestID, req.Prompt, req.Style, duration)
	report(progress, 20)

	data, err := renderMelody(ctx, seed, duration)
	if err != nil {
		return nil, fmt.Errorf("synthetic: %w", err)
	}
	report(progress, 80)

	key := fmt.Sprintf("music/synthetic-%s.wav", seed)
	stored, err := g.assets.Write(ctx, key, data)
	if err != nil {
		return nil, fmt.Errorf("synthetic: store track: %w", err)
	}

	g.logger.Debug().
		Str("request_id", req.RequestID).
		Int("duration", duration).
		Int("bytes", len(data)).
		Msg("synthetic: rendered track")

	return &Track{
		URL:             g.assets.URL(stored),
		DurationSeconds: duration,
		Title:           strings.TrimSpace(req.Title),
		Provider:        syntheticProviderName,
	}, nil
}

// renderMelody writes a 16-bit mono PCM WAV of the given length. Notes are
// picked from the seed and shaped with a sine envelope to avoid clicks.
func renderMelody(ctx context.Context, seed string, seconds int) ([]byte, error) {
	total := seconds * sampleRate
	perNote := int(noteSeconds * sampleRate)
	seedBytes, _ := hex.DecodeString(seed)
	if len(seedBytes) == 0 {
		seedBytes = []byte{0}
	}

	var buf bytes.Buffer
	buf.Grow(44 + total*2)
	writeWAVHeader(&buf, total)

	sample := make([]byte, 2)
	for i := 0; i < total; i++ {
		if i%(sampleRate*10) == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		note := i / perNote
		freq := pentatonic[int(seedBytes[note%len(seedBytes)]+byte(note))%len(pentatonic)]
		pos := float64(i%perNote) / float64(perNote)
		envelope := math.Sin(math.Pi * pos)
		v := amplitude * envelope * math.Sin(2*math.Pi*freq*float64(i)/sampleRate)
		binary.LittleEndian.PutUint16(sample, uint16(int16(v)))
		buf.Write(sample)
	}
	return buf.Bytes(), nil
}

func writeWAVHeader(buf *bytes.Buffer, samples int) {
	dataSize := uint32(samples * 2)
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, 36+dataSize)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // mono
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2))
	_ = binary.Write(buf, binary.LittleEndian, uint16(2))
	_ = binary.Write(buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, dataSize)
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(fmt.Sprintf("%v", part)))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

var _ Generator = (*SyntheticGenerator)(nil)
