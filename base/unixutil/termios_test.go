package unixutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"example.com/gpsdo/base/unixutil"
)

func TestSetHangupOnCloseMissingDevice(t *testing.T) {
	err := unixutil.SetHangupOnClose(filepath.Join(t.TempDir(), "ttyNone"))
	if err == nil {
		t.Skip("platform does not inspect devices")
	}
	if !os.IsNotExist(err) {
		t.Errorf("SetHangupOnClose: got %v, want a not-exist error", err)
	}
}
