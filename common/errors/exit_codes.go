package errors

type ExitCode int

const (
	GenericFailureExitCode ExitCode = 1

	SettingsFailureExitCode    ExitCode = 70
	ClusterLoadFailureExitCode ExitCode = 71

	InitFailureExitCode  ExitCode = 80
	FrameFailureExitCode ExitCode = 81
)
