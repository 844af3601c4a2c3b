//////////////////////////////////////////////////////////////////////////////
//
// Media errors
//
// Copyright 2019 Lanikai Labs LLC. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

package media

import "errors"

var (
	ErrDoubleRelease = errors.New("media: buffer released twice")
	ErrPoolClosed    = errors.New("media: pool closed")
	ErrFrameSize     = errors.New("media: pixel data does not match frame geometry")
	ErrBufferTooBig  = errors.New("media: data exceeds buffer capacity")
)
