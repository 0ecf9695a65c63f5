package sqlinline

// Postgres statements for the generation_jobs table. Every statement starts
// with a "--sql <uuid>" marker consumed by infra.SQLRunner.

const QJobsSchema = `--sql 8b4d63ca-5972-44c9-9b54-16847d2d063b
create table if not exists generation_jobs (
    id text primary key,
    kind text not null,
    owner_id text not null default '',
    params jsonb not null,
    status text not null,
    progress integer not null default 0,
    result jsonb,
    error text not null default '',
    created_at timestamptz not null,
    updated_at timestamptz not null
);
create index if not exists generation_jobs_status_updated_idx on generation_jobs (status, updated_at);
`

const QJobInsert = `--sql da21b7bc-795b-41d4-a73d-81ddd4214f50
insert into generation_jobs (id, kind, owner_id, params, status, progress, result, error, created_at, updated_at)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
on conflict (id) do nothing;
`

// QJobUpdate applies a patch only while the job is still processing. Progress
// never decreases and a completed job always reports 100.
const QJobUpdate = `--sql cca6fce5-5c09-49e8-acd9-51b30237e870
update generation_jobs
set status = coalesce($2::text, status),
    progress = case
        when coalesce($2::text, status) = 'completed' then 100
        else greatest(progress, coalesce($3::integer, progress))
    end,
    result = coalesce($4::jsonb, result),
    error = coalesce($5::text, error),
    updated_at = $6
where id = $1 and status = 'processing'
returning id, kind, owner_id, params, status, progress, result, error, created_at, updated_at;
`

const QJobGet = `--sql 110758fa-cee1-44a0-abf7-00dcaae35408
select id, kind, owner_id, params, status, progress, result, error, created_at, updated_at
from generation_jobs
where id = $1;
`

const QJobList = `--sql 014d9c53-ed71-466c-97cf-c9b70a266854
select id, kind, owner_id, params, status, progress, result, error, created_at, updated_at
from generation_jobs
order by created_at desc
limit $1;
`

const QJobDeleteTerminalBefore = `--sql 2e002c86-e394-4cab-9756-14ba87ef8aa8
delete from generation_jobs
where status in ('completed', 'failed') and updated_at < $1;
`

const QJobListProcessingBefore = `--sql dc650e46-a13b-441f-948c-fb52286fc056
select id, kind, owner_id, params, status, progress, result, error, created_at, updated_at
from generation_jobs
where status = 'processing' and updated_at < $1
order by updated_at asc;
`
