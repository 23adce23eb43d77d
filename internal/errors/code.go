// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package errors

// Code specifies a code for the error.
type Code uint32

// String will return the Code's Info.Message
func (c Code) String() string {
	return c.Info().Message
}

// Info will look up the Code's Info.  If the Info is not found, it will return
// Info for an Unknown Code.
func (c Code) Info() Info {
	if info, ok := errorCodeInfo[c]; ok {
		return info
	}
	return errorCodeInfo[Unknown]
}

const (
	Unknown Code = 0 // Unknown will be equal to a zero value for Codes

	// General function errors are reserved Codes 100-999
	InvalidParameter     Code = 100 // InvalidParameter represents an invalid parameter for an operation.
	InvalidConfiguration Code = 101 // InvalidConfiguration represents a config file or flag combination that cannot be used
	Io                   Code = 102 // Io represents a failed filesystem or process io operation
	ConfirmationDeclined Code = 103 // ConfirmationDeclined represents an operator answering "no" to a prompt

	// DB errors are reserved Codes from 1000-1999
	CheckConstraint      Code = 1000 // CheckConstraint represents a check constraint error
	NotNull              Code = 1001 // NotNull represents a value must not be null error
	NotUnique            Code = 1002 // NotUnique represents a value must be unique error
	NotSpecificIntegrity Code = 1003 // NotSpecificIntegrity represents an integrity error that has no specific domain error code
	MissingTable         Code = 1004 // Missing table represents an undefined table error
	PermissionDenied     Code = 1005 // PermissionDenied represents missing privileges on the database
	RecordNotFound       Code = 1100 // RecordNotFound represents that a record/row was not found matching the criteria

	// Migration errors are reserved Codes from 2000-2999
	IntrospectionFailed Code = 2000 // IntrospectionFailed represents a failure to read the current schema
	UnknownChangeType   Code = 2001 // UnknownChangeType represents a change that cannot be classified
	CheckpointCreation  Code = 2002 // CheckpointCreation represents a failed backup for a checkpoint
	CheckpointInvalid   Code = 2003 // CheckpointInvalid represents a checkpoint that cannot be restored
	ApplyStepFailed     Code = 2004 // ApplyStepFailed represents a single schema change statement failing
	RollbackFailed      Code = 2005 // RollbackFailed represents a failure while reverting changes
	JournalInvalid      Code = 2006 // JournalInvalid represents an unreadable or non-contiguous migration journal
	DefinitionInvalid   Code = 2007 // DefinitionInvalid represents a target schema definition that cannot be used
	AppSignalFailed     Code = 2008 // AppSignalFailed represents the application layer not acknowledging a signal
)
