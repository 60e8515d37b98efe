package supervisor

import apperrors "switchyard/pkg/errors"

type SetupResult string

const (
	SetupOK                    SetupResult = "OK"
	SetupMissingConfig         SetupResult = "MISSING_CONFIG"
	SetupMissingPipelineID     SetupResult = "MISSING_PIPELINE_ID"
	SetupMissingElements       SetupResult = "MISSING_ELEMENTS"
	SetupMissingElementID      SetupResult = "MISSING_ELEMENT_ID"
	SetupMissingElementType    SetupResult = "MISSING_ELEMENT_TYPE"
	SetupNonUniqueElementID    SetupResult = "NON_UNIQUE_ELEMENT_ID"
	SetupMissingInitialNode    SetupResult = "MISSING_INITIAL_NODE"
	SetupUnknownInitialNode    SetupResult = "UNKNOWN_INITIAL_NODE"
	SetupPipelineAlreadyExists SetupResult = "PIPELINE_ALREADY_EXISTS"
)

// Err converts a rejected setup into an application error carrying the result code.
func (r SetupResult) Err() error {
	switch r {
	case SetupOK:
		return nil
	case SetupPipelineAlreadyExists:
		return apperrors.FromReason(string(r), apperrors.ErrConflict)
	default:
		return apperrors.FromReason(string(r), apperrors.ErrValidation)
	}
}

type ShutdownResult string

const (
	ShutdownOK              ShutdownResult = "OK"
	ShutdownUnknownPipeline ShutdownResult = "UNKNOWN_PIPELINE"
)

func (r ShutdownResult) Err() error {
	if r == ShutdownOK {
		return nil
	}
	return apperrors.FromReason(string(r), apperrors.ErrNotFound)
}
