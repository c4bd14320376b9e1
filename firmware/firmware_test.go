package firmware

import (
	"reflect"
	"testing"

	"github.com/calint/uefi-os/firmware/acpi"
	"github.com/calint/uefi-os/kernel"
)

func resetFirmwareFns(t *testing.T) {
	savedLocate, savedGetMap, savedExit, savedRawExit, savedConfigTable, savedLoadOptions :=
		locateFrameBufferFn, getMemoryMapFn, exitBootServicesFn, rawExitFn, configurationTableFn, loadOptionsFn
	t.Cleanup(func() {
		locateFrameBufferFn, getMemoryMapFn, exitBootServicesFn, rawExitFn, configurationTableFn, loadOptionsFn =
			savedLocate, savedGetMap, savedExit, savedRawExit, savedConfigTable, savedLoadOptions
	})
}

func TestLoadOptionsReturnsEmptyStringOnError(t *testing.T) {
	resetFirmwareFns(t)

	loadOptionsFn = func() (string, *kernel.Error) {
		return "", &kernel.Error{Module: "firmware", Message: "no load options"}
	}

	if got := LoadOptions(); got != "" {
		t.Fatalf("expected empty string on error; got %q", got)
	}
}

func TestLoadOptionsPassesThroughValue(t *testing.T) {
	resetFirmwareFns(t)

	loadOptionsFn = func() (string, *kernel.Error) { return "consoleLogo=off", nil }

	if got := LoadOptions(); got != "consoleLogo=off" {
		t.Fatalf("expected passthrough value; got %q", got)
	}
}

func TestConfigurationTablePassesThroughEntries(t *testing.T) {
	resetFirmwareFns(t)

	want := []acpi.ConfigurationTableEntry{{GUID: [16]byte{1}, Table: nil}}
	configurationTableFn = func() ([]acpi.ConfigurationTableEntry, *kernel.Error) { return want, nil }

	got, err := ConfigurationTable()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].GUID != want[0].GUID {
		t.Fatalf("expected %+v; got %+v", want, got)
	}
}

func TestLocateFrameBufferReturnsDescriptor(t *testing.T) {
	resetFirmwareFns(t)

	want := FrameBuffer{Pixels: 0xF000_0000, Width: 1024, Height: 768, Stride: 1024}
	locateFrameBufferFn = func() (FrameBuffer, *kernel.Error) { return want, nil }

	got, err := LocateFrameBuffer()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Fatalf("expected %+v; got %+v", want, got)
	}
}

func TestLocateFrameBufferPropagatesError(t *testing.T) {
	resetFirmwareFns(t)

	locateFrameBufferFn = func() (FrameBuffer, *kernel.Error) { return FrameBuffer{}, errNoGOP }

	if _, err := LocateFrameBuffer(); err != errNoGOP {
		t.Fatalf("expected errNoGOP; got %v", err)
	}
}

func TestExitBootServicesSucceedsOnFirstAttempt(t *testing.T) {
	resetFirmwareFns(t)
	exitBootServicesFn = exitBootServicesViaBootServices

	want := MemoryMap{DescriptorSize: 48, Key: 7}
	mapCalls := 0
	getMemoryMapFn = func() (MemoryMap, *kernel.Error) {
		mapCalls++
		return want, nil
	}
	exitCalls := 0
	rawExitFn = func(imageHandle uint64, key uintptr) *kernel.Error {
		exitCalls++
		if key != want.Key {
			t.Fatalf("expected map key %d passed to exit; got %d", want.Key, key)
		}
		return nil
	}

	got, err := ExitBootServices(0x1234)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %+v; got %+v", want, got)
	}
	if mapCalls != 1 || exitCalls != 1 {
		t.Fatalf("expected exactly one map fetch and one exit attempt; got %d/%d", mapCalls, exitCalls)
	}
}

func TestExitBootServicesRetriesWhenMapKeyStale(t *testing.T) {
	resetFirmwareFns(t)
	exitBootServicesFn = exitBootServicesViaBootServices

	want := MemoryMap{DescriptorSize: 48, Key: 9}
	getMemoryMapFn = func() (MemoryMap, *kernel.Error) { return want, nil }

	exitCalls := 0
	rawExitFn = func(imageHandle uint64, key uintptr) *kernel.Error {
		exitCalls++
		if exitCalls < 3 {
			return &kernel.Error{Module: "firmware", Message: "stale map key"}
		}
		return nil
	}

	got, err := ExitBootServices(0x1234)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %+v; got %+v", want, got)
	}
	if exitCalls != 3 {
		t.Fatalf("expected 3 exit attempts before success; got %d", exitCalls)
	}
}

func TestExitBootServicesFailsAfterAllRetries(t *testing.T) {
	resetFirmwareFns(t)
	exitBootServicesFn = exitBootServicesViaBootServices

	getMemoryMapFn = func() (MemoryMap, *kernel.Error) { return MemoryMap{}, nil }
	exitCalls := 0
	rawExitFn = func(imageHandle uint64, key uintptr) *kernel.Error {
		exitCalls++
		return &kernel.Error{Module: "firmware", Message: "stale map key"}
	}

	if _, err := ExitBootServices(0x1234); err != errExitBootServices {
		t.Fatalf("expected errExitBootServices; got %v", err)
	}
	if exitCalls != exitBootServicesRetries {
		t.Fatalf("expected %d attempts; got %d", exitBootServicesRetries, exitCalls)
	}
}

func TestExitBootServicesSkipsExitWhenMapFetchFails(t *testing.T) {
	resetFirmwareFns(t)
	exitBootServicesFn = exitBootServicesViaBootServices

	getMemoryMapFn = func() (MemoryMap, *kernel.Error) {
		return MemoryMap{}, &kernel.Error{Module: "firmware", Message: "GetMemoryMap failed"}
	}
	exitCalls := 0
	rawExitFn = func(imageHandle uint64, key uintptr) *kernel.Error {
		exitCalls++
		return nil
	}

	if _, err := ExitBootServices(0x1234); err != errExitBootServices {
		t.Fatalf("expected errExitBootServices; got %v", err)
	}
	if exitCalls != 0 {
		t.Fatalf("expected exit never called when the map could not be fetched; got %d calls", exitCalls)
	}
}
