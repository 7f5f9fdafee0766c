// Package cron persists and fires scheduled agent jobs.
package cron

// Schedule describes when a job fires. Kind is one of "at" (one-shot
// epoch millis), "every" (fixed interval millis), or "cron" (5-field
// expression).
type Schedule struct {
	Kind    string `json:"kind"`
	AtMs    *int64 `json:"atMs,omitempty"`
	EveryMs *int64 `json:"everyMs,omitempty"`
	Expr    string `json:"expr,omitempty"`
	TZ      string `json:"tz,omitempty"`
}

// Payload is what a due job delivers to the agent.
type Payload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Deliver bool   `json:"deliver"`
	Channel string `json:"channel,omitempty"`
	To      string `json:"to,omitempty"`
}

// JobState tracks run bookkeeping for a job.
type JobState struct {
	NextRunAtMs *int64 `json:"nextRunAtMs,omitempty"`
	LastRunAtMs *int64 `json:"lastRunAtMs,omitempty"`
	LastStatus  string `json:"lastStatus,omitempty"`
	LastError   string `json:"lastError,omitempty"`
}

// Job is one scheduled task.
type Job struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Enabled        bool     `json:"enabled"`
	Schedule       Schedule `json:"schedule"`
	Payload        Payload  `json:"payload"`
	State          JobState `json:"state"`
	CreatedAtMs    int64    `json:"createdAtMs"`
	UpdatedAtMs    int64    `json:"updatedAtMs"`
	DeleteAfterRun bool     `json:"deleteAfterRun"`
}

// Store is the on-disk job collection.
type Store struct {
	Version int   `json:"version"`
	Jobs    []Job `json:"jobs"`
}
