package session

import "time"

// Recorder receives session metrics
type Recorder interface {
	RecordOperation(managerID, operation, result string, duration time.Duration)
	RecordStall(managerID, operation string)
	SetRunning(managerID string, running bool)
	SetPitch(managerID string, pitch float32)
}

type noopRecorder struct{}

func (noopRecorder) RecordOperation(string, string, string, time.Duration) {}
func (noopRecorder) RecordStall(string, string)                            {}
func (noopRecorder) SetRunning(string, bool)                               {}
func (noopRecorder) SetPitch(string, float32)                              {}
