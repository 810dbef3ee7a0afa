package models

import "time"

// ChunkReport is the immutable result of processing one ingest chunk.
// Workers return these instead of mutating shared counters; the caller
// aggregates them into a BatchReport.
type ChunkReport struct {
	Processed int `json:"processed"`
	Inserted  int `json:"inserted"`
	Merged    int `json:"merged"`
	Skipped   int `json:"skipped"`
	Errored   int `json:"errored"`
}

// Add folds another report into this one.
func (cr *ChunkReport) Add(other ChunkReport) {
	cr.Processed += other.Processed
	cr.Inserted += other.Inserted
	cr.Merged += other.Merged
	cr.Skipped += other.Skipped
	cr.Errored += other.Errored
}

// BatchReport summarizes a full ingest run.
type BatchReport struct {
	ChunkReport `json:",inline"`
	Chunks      int           `json:"chunks"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
}

// DedupReport summarizes one duplicate-resolution pass. TieBreaks
// counts merges whose survivor was chosen by id comparison alone;
// those are the ones worth auditing.
type DedupReport struct {
	GroupsExamined int `json:"groups_examined"`
	Merged         int `json:"merged"`
	Retired        int `json:"retired"`
	TieBreaks      int `json:"tie_breaks"`
}
