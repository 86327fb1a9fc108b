// Package cmdline turns command line arguments into a running account
// generator.
//
// Exactly one generator sub-command must be given:
//
//	accountgenerator [global flags] file-based --output-directory DIR [--password REF] [--light-kdf]
//	accountgenerator [global flags] hsm-based --library PATH --slot N|label:TOKEN --pin REF
//
// Parse returns one of the exit codes below and always prints usage on
// error paths.
//
//	ExitCodeOK             0  clean shutdown, or help/version output
//	ExitCodeExecutionError 1  the generator or the service failed, including
//	                          generator initialization at startup
//	ExitCodeInvalidInput   2  missing sub-command, unknown arguments, bad
//	                          flags or invalid generator configuration
package cmdline
