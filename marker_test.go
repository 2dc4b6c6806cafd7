package wal

import (
	"os"
	"testing"
)

func TestAckMarkerRoundTrip(t *testing.T) {
	fsys := NewMemFS()
	if err := fsys.MkdirAll("q", 0755); err != nil {
		t.Fatal(err)
	}

	if err := writeAckMarker(fsys, "q", 42); err != nil {
		t.Fatal(err)
	}

	// No staging file left behind.
	if _, err := fsys.OpenFile("q/"+ackMarkerTmpName, os.O_RDONLY, 0); !os.IsNotExist(err) {
		t.Errorf("staging file still present: %v", err)
	}

	index, found, err := consumeAckMarker(fsys, "q")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("marker not found")
	}
	if index != 42 {
		t.Errorf("index: want=42 got=%d", index)
	}

	// Consuming removes the marker.
	if _, found, err := consumeAckMarker(fsys, "q"); err != nil || found {
		t.Errorf("second consume: want=(0, false, nil) got=(found=%v, %v)", found, err)
	}
}

func TestAckMarkerOverwrite(t *testing.T) {
	fsys := NewMemFS()
	if err := fsys.MkdirAll("q", 0755); err != nil {
		t.Fatal(err)
	}

	if err := writeAckMarker(fsys, "q", 1); err != nil {
		t.Fatal(err)
	}
	if err := writeAckMarker(fsys, "q", 2); err != nil {
		t.Fatal(err)
	}

	index, found, err := consumeAckMarker(fsys, "q")
	if err != nil {
		t.Fatal(err)
	}
	if !found || index != 2 {
		t.Errorf("want=(2, true) got=(%d, %v)", index, found)
	}
}

func TestAckMarkerShort(t *testing.T) {
	fsys := NewMemFS()
	if err := fsys.MkdirAll("q", 0755); err != nil {
		t.Fatal(err)
	}

	f, err := fsys.OpenFile("q/"+ackMarkerName, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte{0x01, 0x02}); err != nil {
		t.Fatal(err)
	}
	f.Close()

	// A short marker is discarded, not an error.
	_, found, err := consumeAckMarker(fsys, "q")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("short marker reported as found")
	}
	if _, err := fsys.OpenFile("q/"+ackMarkerName, os.O_RDONLY, 0); !os.IsNotExist(err) {
		t.Errorf("short marker not removed: %v", err)
	}
}
