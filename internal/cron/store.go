package cron

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/mentxia/mordomo/internal/config"
	. "github.com/mentxia/mordomo/internal/logging"
)

// Store manages job persistence. Jobs live in a JSON file written
// atomically on every mutation; the file is the durability boundary for
// the at-most-once firing guarantee. Jobs never leave the store as
// shared pointers: accessors return copies and field mutation goes
// through Update under the write lock, so a concurrent Save always
// marshals consistent state.
type Store struct {
	path string
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewStore creates a store backed by jobsPath.
func NewStore(jobsPath string) *Store {
	return &Store{
		path: jobsPath,
		jobs: make(map[string]*Job),
	}
}

// DefaultJobsPath returns the jobs file location under dataDir.
func DefaultJobsPath(dataDir string) string {
	return filepath.Join(dataDir, "jobs.json")
}

// Load reads jobs from the JSON file. A missing file starts empty.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			L_debug("cron: jobs file not found, starting empty", "path", s.path)
			s.jobs = make(map[string]*Job)
			return nil
		}
		return fmt.Errorf("failed to read jobs file: %w", err)
	}

	var file StoreFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse jobs file: %w", err)
	}

	s.jobs = make(map[string]*Job, len(file.Jobs))
	for _, job := range file.Jobs {
		if job.ID == "" {
			continue
		}
		s.jobs[job.ID] = job
	}

	L_info("cron: loaded jobs", "count", len(s.jobs), "path", s.path)
	return nil
}

// Save writes jobs to the JSON file atomically. The snapshot is taken
// as copies under the lock; marshaling happens outside it.
func (s *Store) Save() error {
	s.mu.RLock()
	file := StoreFile{
		Version: 1,
		Jobs:    make([]*Job, 0, len(s.jobs)),
	}
	for _, job := range s.jobs {
		file.Jobs = append(file.Jobs, job.clone())
	}
	s.mu.RUnlock()

	sort.Slice(file.Jobs, func(i, j int) bool { return file.Jobs[i].CreatedAt.Before(file.Jobs[j].CreatedAt) })

	if err := config.AtomicWriteJSON(s.path, file, 0644); err != nil {
		return fmt.Errorf("failed to save jobs: %w", err)
	}
	L_debug("cron: saved jobs", "count", len(file.Jobs), "path", s.path)
	return nil
}

// Get returns a copy of a job by ID, or nil.
func (s *Store) Get(id string) *Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil
	}
	return job.clone()
}

// All returns copies of all jobs sorted by creation time.
func (s *Store) All() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job.clone())
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })
	return jobs
}

// Add inserts a copy of the job. The caller persists via Save.
func (s *Store) Add(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.clone()
}

// Update applies fn to the stored job under the write lock and reports
// whether the job exists. All run-state mutation goes through here.
func (s *Store) Update(id string, fn func(*Job)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false
	}
	fn(job)
	return true
}

// Remove deletes a job and reports whether it existed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[id]
	delete(s.jobs, id)
	return ok
}

// Len returns the number of stored jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
