package inject

import "sync/atomic"

// Switch routes transcripts to the notebook while notebook mode is on and
// to the typing sink otherwise. Mode changes take effect on the next
// Deliver.
type Switch struct {
	typer        Sink
	notebook     *Notebook
	notebookMode atomic.Bool
}

// NewSwitch returns a Switch. notebook may be nil, in which case notebook
// mode cannot be enabled.
func NewSwitch(typer Sink, notebook *Notebook, notebookMode bool) *Switch {
	s := &Switch{typer: typer, notebook: notebook}
	s.SetNotebookMode(notebookMode)
	return s
}

// Deliver implements Sink.
func (s *Switch) Deliver(text string) error {
	if s.NotebookMode() {
		return s.notebook.Deliver(text)
	}
	return s.typer.Deliver(text)
}

// SetNotebookMode enables or disables notebook mode and reports the mode
// now in effect.
func (s *Switch) SetNotebookMode(on bool) bool {
	s.notebookMode.Store(on && s.notebook != nil)
	return s.NotebookMode()
}

// ToggleNotebookMode flips notebook mode and returns the new state.
func (s *Switch) ToggleNotebookMode() bool {
	return s.SetNotebookMode(!s.NotebookMode())
}

// NotebookMode reports whether transcripts go to the notebook.
func (s *Switch) NotebookMode() bool {
	return s.notebookMode.Load()
}

// Notebook returns the notebook, or nil if none is configured.
func (s *Switch) Notebook() *Notebook {
	return s.notebook
}
