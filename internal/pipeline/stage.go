package pipeline

import "fmt"

// Stage is a step of the unseal pipeline.
type Stage int

// Pipeline stages, in execution order.
const (
	StageLoad Stage = iota
	StageParseSections
	StageDeriveKey
	StageExtractCiphertext
	StageDecrypt
	StageUnpad
	StageReport
)

var stageNames = [...]string{
	StageLoad:              "LOAD",
	StageParseSections:     "PARSE_SECTIONS",
	StageDeriveKey:         "DERIVE_KEY",
	StageExtractCiphertext: "EXTRACT_CIPHERTEXT",
	StageDecrypt:           "DECRYPT",
	StageUnpad:             "UNPAD",
	StageReport:            "REPORT",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// StageError is a fatal failure that halted the pipeline at Stage.
type StageError struct {
	Stage Stage
	// VA is the virtual address being processed, 0 when not applicable.
	VA  uint64
	Err error
}

func (e *StageError) Error() string {
	if e.VA != 0 {
		return fmt.Sprintf("阶段 %s 失败 (VA 0x%X): %v", e.Stage, e.VA, e.Err)
	}
	return fmt.Sprintf("阶段 %s 失败: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
