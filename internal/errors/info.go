// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package errors

// Info contains details of the specific error code
type Info struct {
	// Kind specifies the kind of error (unknown, parameter, integrity, etc).
	Kind Kind

	// Message provides a default message for the error code
	Message string
}

// errorCodeInfo provides a map of unique Codes (IDs) to their
// corresponding Kind and a default Message.
var errorCodeInfo = map[Code]Info{
	Unknown: {
		Message: "unknown",
		Kind:    Other,
	},
	InvalidParameter: {
		Message: "invalid parameter",
		Kind:    Parameter,
	},
	InvalidConfiguration: {
		Message: "invalid configuration",
		Kind:    Parameter,
	},
	Io: {
		Message: "error during io operation",
		Kind:    Integrity,
	},
	ConfirmationDeclined: {
		Message: "confirmation declined",
		Kind:    Parameter,
	},
	CheckConstraint: {
		Message: "constraint check failed",
		Kind:    Integrity,
	},
	NotNull: {
		Message: "must not be empty (null) violation",
		Kind:    Integrity,
	},
	NotUnique: {
		Message: "must be unique violation",
		Kind:    Integrity,
	},
	NotSpecificIntegrity: {
		Message: "Integrity violation without specific details",
		Kind:    Integrity,
	},
	MissingTable: {
		Message: "missing table",
		Kind:    Integrity,
	},
	PermissionDenied: {
		Message: "permission denied",
		Kind:    External,
	},
	RecordNotFound: {
		Message: "record not found",
		Kind:    Search,
	},
	IntrospectionFailed: {
		Message: "schema introspection failed",
		Kind:    Migration,
	},
	UnknownChangeType: {
		Message: "unknown change type",
		Kind:    Migration,
	},
	CheckpointCreation: {
		Message: "checkpoint creation failed",
		Kind:    Migration,
	},
	CheckpointInvalid: {
		Message: "checkpoint invalid",
		Kind:    Migration,
	},
	ApplyStepFailed: {
		Message: "apply step failed",
		Kind:    Migration,
	},
	RollbackFailed: {
		Message: "rollback failed",
		Kind:    Migration,
	},
	JournalInvalid: {
		Message: "migration journal invalid",
		Kind:    Migration,
	},
	DefinitionInvalid: {
		Message: "schema definition invalid",
		Kind:    Parameter,
	},
	AppSignalFailed: {
		Message: "application signal failed",
		Kind:    External,
	},
}
