package blockdevice

// Opener of handles to the same storage medium. Sessions that use
// multiple workers open a separate handle for every worker, so that
// positioned I/O against the storage medium may run in parallel.
type Opener interface {
	Open(options OpenOptions) (BlockDevice, Geometry, error)
}

type pathOpener struct {
	path string
}

// NewPathOpener creates an Opener that opens a device node or regular
// file stored at a given path, using the implementation of Open() for
// the current platform.
func NewPathOpener(path string) Opener {
	return pathOpener{path: path}
}

func (o pathOpener) Open(options OpenOptions) (BlockDevice, Geometry, error) {
	return Open(o.path, options)
}

type sharedOpener struct {
	blockDevice BlockDevice
	geometry    Geometry
}

// NewSharedOpener creates an Opener that hands out the same BlockDevice
// over and over again. Calls to Close() against the handles returned
// by Open() are ignored, meaning the caller remains responsible for
// closing the BlockDevice.
//
// This can be used to run sessions against BlockDevices that are not
// backed by a path, such as the ones created by NewMemoryBlockDevice().
func NewSharedOpener(blockDevice BlockDevice, geometry Geometry) Opener {
	return &sharedOpener{
		blockDevice: blockDevice,
		geometry:    geometry,
	}
}

func (o *sharedOpener) Open(options OpenOptions) (BlockDevice, Geometry, error) {
	return NewNonClosingBlockDevice(o.blockDevice), o.geometry, nil
}

type nonClosingBlockDevice struct {
	BlockDevice
}

// NewNonClosingBlockDevice creates a decorator for BlockDevice that
// ignores calls to Close(). This is used to hand out references to
// BlockDevices that are owned by someone else.
func NewNonClosingBlockDevice(base BlockDevice) BlockDevice {
	return nonClosingBlockDevice{BlockDevice: base}
}

func (bd nonClosingBlockDevice) DropCache() error {
	return DropCache(bd.BlockDevice)
}

func (nonClosingBlockDevice) Close() error {
	return nil
}
