// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package imageload

import "fmt"

// UnsupportedFormatError reports a file whose extension is not a supported
// poster image format.
type UnsupportedFormatError struct {
	Path string
	Ext  string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Ext == "" {
		return fmt.Sprintf("unsupported image format (no extension): %s", e.Path)
	}
	return fmt.Sprintf("unsupported image format %q: %s", e.Ext, e.Path)
}

// DecodeError reports a file that could not be read or decoded.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
