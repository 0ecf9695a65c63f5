package sqlinline

// SQLite statements for the embedded job store. Timestamps are unix
// nanoseconds so cutoff comparisons stay integer comparisons.

const QSQLiteJobsSchema = `--sql 2ac449f4-707c-4529-8597-07180863be85
create table if not exists generation_jobs (
    id text primary key,
    kind text not null,
    owner_id text not null default '',
    params text not null,
    status text not null,
    progress integer not null default 0,
    result text,
    error text not null default '',
    created_at integer not null,
    updated_at integer not null
);
create index if not exists generation_jobs_status_updated_idx on generation_jobs (status, updated_at);
`

const QSQLiteJobInsert = `--sql 0c71da8e-6398-45f4-8287-8cfb4ff23b47
insert or ignore into generation_jobs (id, kind, owner_id, params, status, progress, result, error, created_at, updated_at)
values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`

const QSQLiteJobUpdate = `--sql 0587f05c-08ad-4779-b282-c9fefd217edc
update generation_jobs
set status = coalesce(?1, status),
    progress = case
        when coalesce(?1, status) = 'completed' then 100
        else max(progress, coalesce(?2, progress))
    end,
    result = coalesce(?3, result),
    error = coalesce(?4, error),
    updated_at = ?5
where id = ?6 and status = 'processing'
returning id, kind, owner_id, params, status, progress, result, error, created_at, updated_at;
`

const QSQLiteJobExists = `--sql 15016e89-ff27-44e5-b489-e72b7fca7d9b
select status from generation_jobs where id = ?;
`

const QSQLiteJobGet = `--sql af532023-e8f7-46c0-bfbe-902933f4d90b
select id, kind, owner_id, params, status, progress, result, error, created_at, updated_at
from generation_jobs
where id = ?;
`

const QSQLiteJobList = `--sql a29055c4-0a1b-421d-99fe-78fb6471fc1a
select id, kind, owner_id, params, status, progress, result, error, created_at, updated_at
from generation_jobs
order by created_at desc
limit ?;
`

const QSQLiteJobDeleteTerminalBefore = `--sql 30902605-fd37-4404-af16-32442e207701
delete from generation_jobs
where status in ('completed', 'failed') and updated_at < ?;
`

const QSQLiteJobListProcessingBefore = `--sql c9f9ee40-b63a-4cb6-8dfb-a2f65dc294d6
select id, kind, owner_id, params, status, progress, result, error, created_at, updated_at
from generation_jobs
where status = 'processing' and updated_at < ?
order by updated_at asc;
`
