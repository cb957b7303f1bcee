package domain

// DataMap is a string-keyed bag of arbitrary serializable values attached to
// a job or trigger. Trigger data wins over job data when the two are merged
// at fire time (spec.md §3).
type DataMap map[string]any

// Clone returns a shallow copy — callers mutate the copy, never the
// original map held by the store.
func (d DataMap) Clone() DataMap {
	if d == nil {
		return DataMap{}
	}
	out := make(DataMap, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Merge returns a new map containing d's entries overlaid by over's —
// used to merge job data with trigger-local data ("trigger wins").
func (d DataMap) Merge(over DataMap) DataMap {
	out := d.Clone()
	for k, v := range over {
		out[k] = v
	}
	return out
}

// JobDetail is a job definition: identity, the opaque class string the
// JobFactory resolves to executable code, and the two capability flags the
// job class advertises.
type JobDetail struct {
	Key         Key
	JobClass    string
	Description string
	JobData     DataMap

	// Durable jobs are retained even when no trigger references them.
	Durable bool

	// RequestsRecovery: re-fired on restart if it was executing at shutdown.
	RequestsRecovery bool

	// PersistDataAfterExecution: the data map the job returns replaces the
	// stored one.
	PersistDataAfterExecution bool

	// DisallowConcurrentExecution: at most one execution of this job
	// identity runs at a time, across all of its triggers.
	DisallowConcurrentExecution bool
}

// Clone returns a deep-enough copy for safe storage/retrieval round trips.
func (j JobDetail) Clone() JobDetail {
	cp := j
	cp.JobData = j.JobData.Clone()
	return cp
}
