package vm

import (
	"os"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

var storeLog = logrus.WithField("component", "store")

// Store is a sparse vector of tasks indexed by id. Deleted slots become
// tombstones (nil) rather than being compacted, so ids already handed out
// are never reused. Not safe for concurrent use.
type Store struct {
	tasks  []*TaskVM
	nextID uint32
	alive  int
	path   string
}

// NewStore returns an empty store that persists to path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Add assigns task.ID = next id, grows the sparse vector as needed, and
// stores it.
func (s *Store) Add(task *TaskVM) {
	id := s.nextID
	s.nextID++
	task.ID = id
	s.growTo(int(id) + 1)
	s.tasks[id] = task
	s.alive++
}

func (s *Store) growTo(n int) {
	if len(s.tasks) >= n {
		return
	}
	grown := make([]*TaskVM, n)
	copy(grown, s.tasks)
	s.tasks = grown
}

// Get returns the task at id, or TaskNotFoundError if the slot is empty or
// out of range.
func (s *Store) Get(id uint32) (*TaskVM, error) {
	if int(id) >= len(s.tasks) || s.tasks[id] == nil {
		return nil, &TaskNotFoundError{ID: id}
	}
	return s.tasks[id], nil
}

// GetMut is Get, named to mirror the original's distinct read/write
// accessors; in Go both return the same mutable pointer.
func (s *Store) GetMut(id uint32) (*TaskVM, error) { return s.Get(id) }

// Delete tombstones the slot at id, or fails with TaskNotFoundError if
// already empty or out of range.
func (s *Store) Delete(id uint32) error {
	if int(id) >= len(s.tasks) || s.tasks[id] == nil {
		return &TaskNotFoundError{ID: id}
	}
	s.tasks[id] = nil
	s.alive--
	return nil
}

// Len returns the count of live (non-tombstoned) tasks.
func (s *Store) Len() int { return s.alive }

// ResolveTask materializes the logical Task at id by resolving its title and
// disassembling its instructions.
func (s *Store) ResolveTask(id uint32, strings *StringPool, instructions *InstructionsPool) (Task, error) {
	t, err := s.Get(id)
	if err != nil {
		return Task{}, err
	}
	return t.toTask(strings, instructions)
}

// liveTasksOrdered returns every live task, in ascending slot order.
func (s *Store) liveTasksOrdered() []*TaskVM {
	return lo.Filter(s.tasks, func(t *TaskVM, _ int) bool { return t != nil })
}

// Save materializes every live task to a logical Task and writes the store
// to its persistence path using the binary codec.
func (s *Store) Save(strings *StringPool, instructions *InstructionsPool) error {
	live := s.liveTasksOrdered()
	logical := make([]Task, 0, len(live))
	for _, t := range live {
		task, err := t.toTask(strings, instructions)
		if err != nil {
			return errors.Wrap(err, "store: resolving tasks for save")
		}
		logical = append(logical, task)
	}

	f, err := os.Create(s.path)
	if err != nil {
		storeLog.WithError(err).Error("store: create failed")
		return errors.Wrap(ErrStorageWriteError, err.Error())
	}
	defer f.Close()

	data := StorageData{Tasks: logical, NextID: s.nextID}
	if err := data.Encode(f); err != nil {
		return err
	}
	storeLog.WithField("count", len(logical)).Debug("store: saved")
	return nil
}

// Load reads the store from its persistence path, reassembling each task's
// instructions into instructions and re-interning its title into strings. A
// missing file is treated as an empty store rather than an error.
func Load(path string, strings *StringPool, instructions *InstructionsPool) (*Store, error) {
	s := &Store{path: path}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			storeLog.Debug("store: no persisted file, starting empty")
			return s, nil
		}
		storeLog.WithError(err).Error("store: open failed")
		return nil, errors.Wrap(ErrStorageReadError, err.Error())
	}
	defer f.Close()

	var data StorageData
	if err := data.Decode(f); err != nil {
		return nil, err
	}

	for _, t := range data.Tasks {
		taskVM, err := taskVMFromTask(t, strings, instructions)
		if err != nil {
			return nil, err
		}
		s.growTo(int(taskVM.ID) + 1)
		s.tasks[taskVM.ID] = taskVM
		s.alive++
	}
	s.nextID = data.NextID

	storeLog.WithField("count", s.alive).Debug("store: loaded")
	return s, nil
}
