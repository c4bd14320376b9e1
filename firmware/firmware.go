// Package firmware wraps the UEFI boot-services calls this kernel needs
// during bring-up: locating the graphics output framebuffer, capturing the
// firmware memory map, and handing off execution with ExitBootServices. It
// is built directly against github.com/usbarmory/go-boot/uefi's Services
// type rather than hand-rolling EFI table layouts, the same way
// firmware/acpi is built against its own table package instead of parsing
// raw bytes ad-hoc everywhere.
package firmware

import (
	"github.com/usbarmory/go-boot/uefi"

	"github.com/calint/uefi-os/firmware/acpi"
	"github.com/calint/uefi-os/kernel"
)

var (
	errNoGOP            = &kernel.Error{Module: "firmware", Message: "no graphics output protocol available"}
	errExitBootServices = &kernel.Error{Module: "firmware", Message: "ExitBootServices failed after all retries"}
)

// exitBootServicesRetries bounds how many times the memory map is refetched
// before calling the firmware's exit routine. Each retry is needed because
// the map key returned alongside the map invalidates on any intervening
// firmware event (including the allocation used to grow the buffer itself).
const exitBootServicesRetries = 16

// FrameBuffer describes the linear framebuffer handed off by the graphics
// output protocol. Pixels is a physical address; Stride may exceed Width
// when the firmware pads scanlines.
type FrameBuffer struct {
	Pixels uintptr
	Width  uint32
	Height uint32
	Stride uint32
}

// MemoryMap is the firmware's memory descriptor list as returned by
// GetMemoryMap. Descriptors are not a fixed Go type: consumers must stride
// through Buffer using DescriptorSize, not sizeof any struct, since the
// descriptor layout is versioned by firmware revision.
type MemoryMap struct {
	Buffer            []byte
	DescriptorSize    uintptr
	DescriptorVersion uint32
	Key               uintptr
}

// services is the single firmware services handle for this kernel. It is
// package-level because UEFI boot services are a process-wide singleton:
// there is exactly one firmware instance to talk to.
var services = &uefi.Services{}

var (
	initFn               = services.Init
	locateFrameBufferFn  = locateFrameBufferViaGOP
	getMemoryMapFn       = getMemoryMapViaBootServices
	exitBootServicesFn   = exitBootServicesViaBootServices
	configurationTableFn = configurationTableViaServices

	// rawExitFn calls the firmware's ExitBootServices boot service
	// directly. It is bound to services.ExitBootServices by default and
	// overridden with a fake in tests.
	rawExitFn = func(imageHandle uint64, mapKey uintptr) *kernel.Error {
		if err := services.ExitBootServices(imageHandle, mapKey); err != nil {
			return &kernel.Error{Module: "firmware", Message: "ExitBootServices failed"}
		}
		return nil
	}
)

// Init binds the firmware services to the handles the firmware passed to
// efi_main. It must be called before any other function in this package.
func Init(imageHandle, systemTable uint64) *kernel.Error {
	if err := initFn(imageHandle, systemTable); err != nil {
		return &kernel.Error{Module: "firmware", Message: "could not initialize UEFI services"}
	}
	return nil
}

// LocateFrameBuffer consults the firmware's graphics output protocol and
// returns the active framebuffer descriptor. It is fatal if no GOP
// instance is available, since this kernel has no other way to draw.
func LocateFrameBuffer() (FrameBuffer, *kernel.Error) {
	return locateFrameBufferFn()
}

func locateFrameBufferViaGOP() (FrameBuffer, *kernel.Error) {
	gop, err := services.GOP()
	if err != nil || gop == nil {
		return FrameBuffer{}, errNoGOP
	}

	mode := gop.Mode()
	return FrameBuffer{
		Pixels: uintptr(mode.FrameBufferBase),
		Width:  mode.Info.HorizontalResolution,
		Height: mode.Info.VerticalResolution,
		Stride: mode.Info.PixelsPerScanLine,
	}, nil
}

// ConfigurationTable returns the firmware's EFI_CONFIGURATION_TABLE array,
// converted to acpi's entry type. Must be called before ExitBootServices;
// the array is boot-services-owned memory.
func ConfigurationTable() ([]acpi.ConfigurationTableEntry, *kernel.Error) {
	return configurationTableFn()
}

func configurationTableViaServices() ([]acpi.ConfigurationTableEntry, *kernel.Error) {
	raw, err := services.ConfigurationTable()
	if err != nil {
		return nil, &kernel.Error{Module: "firmware", Message: "could not read firmware configuration table"}
	}

	out := make([]acpi.ConfigurationTableEntry, len(raw))
	for i, e := range raw {
		out[i] = acpi.ConfigurationTableEntry{GUID: e.VendorGuid, Table: e.VendorTable}
	}
	return out, nil
}

var loadOptionsFn = loadOptionsViaServices

// LoadOptions returns the raw boot command line the loader passed this
// image, or an empty string if firmware supplied none. Failure here is
// never fatal: it feeds only diagnostic boot-parameter parsing.
func LoadOptions() string {
	s, err := loadOptionsFn()
	if err != nil {
		return ""
	}
	return s
}

func loadOptionsViaServices() (string, *kernel.Error) {
	opts, err := services.LoadOptions()
	if err != nil {
		return "", &kernel.Error{Module: "firmware", Message: "could not read image load options"}
	}
	return opts, nil
}

// ExitBootServices retrieves the firmware memory map and hands off
// execution, returning the final map so the caller (the bump allocator)
// can pick the conventional-memory region to bootstrap from.
//
// The map buffer is a Go slice (allocated with make, not through the
// firmware's AllocatePages service) with one extra page of headroom over
// the size firmware reports, leaving room for descriptors the map gains
// between the sizing call and the real one. Up to
// exitBootServicesRetries attempts are made: each failure means firmware
// invalidated the map key (normally because the buffer had to grow), so
// the map is refetched and the exit is retried rather than aborted
// immediately.
func ExitBootServices(imageHandle uint64) (MemoryMap, *kernel.Error) {
	return exitBootServicesFn(imageHandle)
}

func exitBootServicesViaBootServices(imageHandle uint64) (MemoryMap, *kernel.Error) {
	var mm MemoryMap

	for attempt := 0; attempt < exitBootServicesRetries; attempt++ {
		got, err := getMemoryMapFn()
		if err != nil {
			continue
		}
		mm = got

		if exitErr := rawExitFn(imageHandle, mm.Key); exitErr == nil {
			return mm, nil
		}
	}

	return MemoryMap{}, errExitBootServices
}

// memoryMapHeadroom is added to the firmware-reported map size before the
// real GetMemoryMap call, leaving room for descriptors the map gains
// between the sizing call and the real one. The buffer is allocated with
// make, not through the firmware's AllocatePages service.
const memoryMapHeadroom = 4096

func getMemoryMapViaBootServices() (MemoryMap, *kernel.Error) {
	size, descSize, descVer, sizeErr := services.MemoryMapSize()
	if sizeErr != nil {
		return MemoryMap{}, &kernel.Error{Module: "firmware", Message: "could not size memory map"}
	}

	buf := make([]byte, size+memoryMapHeadroom)
	n, key, gotErr := services.GetMemoryMap(buf)
	if gotErr != nil {
		return MemoryMap{}, &kernel.Error{Module: "firmware", Message: "GetMemoryMap failed"}
	}

	return MemoryMap{
		Buffer:            buf[:n],
		DescriptorSize:    descSize,
		DescriptorVersion: descVer,
		Key:               key,
	}, nil
}
