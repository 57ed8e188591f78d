package vm

// TaskStatus mirrors the three lifecycle states a task can be in.
type TaskStatus uint32

const (
	NotComplete TaskStatus = 0
	InProgress  TaskStatus = 1
	Complete    TaskStatus = 2
)

// TaskStatusFromU32 validates a raw value against the three known statuses.
func TaskStatusFromU32(v uint32) (TaskStatus, error) {
	switch TaskStatus(v) {
	case NotComplete, InProgress, Complete:
		return TaskStatus(v), nil
	default:
		return 0, &InvalidStatusError{Value: v}
	}
}

// TaskField selects which field of a task T_GET_FIELD/T_SET_FIELD addresses.
type TaskField uint32

const (
	FieldTitle        TaskField = 0
	FieldStatus       TaskField = 1
	FieldInstructions TaskField = 2
)

// TaskFieldFromU32 validates a raw value against the three known fields.
func TaskFieldFromU32(v uint32) (TaskField, error) {
	switch TaskField(v) {
	case FieldTitle, FieldStatus, FieldInstructions:
		return TaskField(v), nil
	default:
		return 0, &InvalidTaskFieldError{Value: v}
	}
}

// Task is the logical, pool-resolved view of a task: its title and
// instructions are plain strings rather than pool indices.
type Task struct {
	ID           uint32
	Title        string
	Status       TaskStatus
	Instructions string
}

// TaskVM is the in-memory form a task takes while the VM holds it: title and
// instructions are indices into the shared pools rather than owned strings.
type TaskVM struct {
	ID              uint32
	TitleRef        uint32
	Status          TaskStatus
	InstructionsRef uint32
}

// toTask materializes a logical Task by resolving this TaskVM's pool
// references.
func (t *TaskVM) toTask(strings *StringPool, instructions *InstructionsPool) (Task, error) {
	title, err := strings.Resolve(t.TitleRef)
	if err != nil {
		return Task{}, err
	}
	blob, err := instructions.Get(t.InstructionsRef)
	if err != nil {
		return Task{}, err
	}
	src, err := Disassemble(blob, strings, instructions)
	if err != nil {
		return Task{}, err
	}
	return Task{ID: t.ID, Title: title, Status: t.Status, Instructions: src}, nil
}

// taskVMFromTask re-interns a persisted Task's title and reassembles its
// instructions, producing the in-memory form Load restores into the store.
func taskVMFromTask(t Task, strings *StringPool, instructions *InstructionsPool) (*TaskVM, error) {
	blob, err := Assemble(t.Instructions, strings, instructions)
	if err != nil {
		return nil, err
	}
	ref := instructions.Intern(blob)
	return &TaskVM{
		ID:              t.ID,
		TitleRef:        strings.Intern(t.Title),
		Status:          t.Status,
		InstructionsRef: ref,
	}, nil
}
