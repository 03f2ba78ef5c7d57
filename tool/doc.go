// Package tool translates protocol tool descriptors into callables for the
// iris agent framework.
//
// A Descriptor comes from a Client. Translate maps its input JSON Schema onto
// a ParamModel of Scalar, Sequence, Object and Opaque fields and returns a
// Tool whose invocation delegates back to the client and adapts the result to
// plain Go values. Errors are *ToolError values; match their kind with
// errors.Is against ErrMalformedDescriptor, ErrInvalidArguments,
// ErrInvocationFailure and ErrResultAdaptation.
package tool
