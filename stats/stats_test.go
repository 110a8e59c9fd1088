package stats

import "testing"

func TestSnapshotCounts(t *testing.T) {
	s := New(nil)
	s.RecordGet(true)
	s.RecordGet(false)
	s.RecordSet()
	s.RecordDelete()
	s.RecordList()
	s.RecordUnknown()

	snap := s.Snapshot()
	if snap.TotalOps != 6 {
		t.Fatalf("TotalOps = %d, want 6", snap.TotalOps)
	}
	if snap.GetOps != 2 || snap.GetHitRate != 0.5 {
		t.Fatalf("GetOps=%d HitRate=%v, want 2, 0.5", snap.GetOps, snap.GetHitRate)
	}
	if snap.SetOps != 1 || snap.DelOps != 1 || snap.ListOps != 1 || snap.UnknownOps != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestConnectionCounters(t *testing.T) {
	s := New(nil)
	s.ConnectionOpened()
	s.ConnectionOpened()
	s.ConnectionClosed()

	snap := s.Snapshot()
	if snap.Connections != 2 {
		t.Fatalf("Connections = %d, want 2", snap.Connections)
	}
	if snap.ActiveConns != 1 {
		t.Fatalf("ActiveConns = %d, want 1", snap.ActiveConns)
	}
}

func TestByteCounters(t *testing.T) {
	s := New(nil)
	s.RecordRead(10)
	s.RecordWrite(20)
	snap := s.Snapshot()
	if snap.BytesRead != 10 || snap.BytesWritten != 20 {
		t.Fatalf("snapshot = %+v", snap)
	}
}
