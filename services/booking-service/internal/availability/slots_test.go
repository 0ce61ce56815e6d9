package availability

import (
	"reflect"
	"testing"
	"time"

	"github.com/lunalash/studio/services/booking-service/internal/model"
)

func slot(id, date, clock string, open bool) model.Slot {
	return model.Slot{ID: id, Date: date, Time: clock, Location: "Location A", IsAvailable: open}
}

func TestOpenTimes_FarFutureUnfiltered(t *testing.T) {
	now := time.Date(2024, 6, 1, 15, 30, 0, 0, time.UTC)
	slots := []model.Slot{
		slot("1", "2024-06-10", "14:00", true),
		slot("2", "2024-06-10", "09:00", true),
		slot("3", "2024-06-10", "10:00", false),
		slot("4", "2024-06-10", "09:00", true),
		slot("5", "2024-06-11", "08:00", true),
	}

	got := OpenTimes(slots, "2024-06-10", now, 24*time.Hour)
	want := []string{"09:00", "14:00"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestOpenTimes_BoundaryDate(t *testing.T) {
	// cutoff = 2024-06-02 15:30
	now := time.Date(2024, 6, 1, 15, 30, 0, 0, time.UTC)
	slots := []model.Slot{
		slot("1", "2024-06-02", "09:00", true),
		slot("2", "2024-06-02", "15:00", true),
		slot("3", "2024-06-02", "15:30", true),
		slot("4", "2024-06-02", "17:00", true),
	}

	got := OpenTimes(slots, "2024-06-02", now, 24*time.Hour)
	want := []string{"15:30", "17:00"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestOpenTimes_BeforeCutoffDateIsEmpty(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	slots := []model.Slot{slot("1", "2024-06-01", "18:00", true)}

	got := OpenTimes(slots, "2024-06-01", now, 24*time.Hour)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", got)
	}
}

func TestOpenTimes_UsesLocalDate(t *testing.T) {
	tz := time.FixedZone("BRT", -3*3600)
	// 01:00 UTC on the 2nd is still the 1st at 22:00 locally.
	now := time.Date(2024, 6, 2, 1, 0, 0, 0, time.UTC).In(tz)
	slots := []model.Slot{
		slot("1", "2024-06-02", "21:00", true),
		slot("2", "2024-06-02", "23:00", true),
	}
	got := OpenTimes(slots, "2024-06-02", now, 24*time.Hour)
	want := []string{"23:00"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestHourlyTimes_SkipsLunch(t *testing.T) {
	got, err := HourlyTimes("09:00", "17:00", "12:00", "13:59")
	if err != nil {
		t.Fatalf("HourlyTimes failed: %v", err)
	}
	want := []string{"09:00", "10:00", "11:00", "14:00", "15:00", "16:00", "17:00"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestHourlyTimes_Errors(t *testing.T) {
	if _, err := HourlyTimes("17:00", "09:00", "", ""); err == nil {
		t.Fatal("expected error when end precedes start")
	}
	if _, err := HourlyTimes("9am", "17:00", "", ""); err == nil {
		t.Fatal("expected error for malformed start")
	}
	got, err := HourlyTimes("09:00", "11:00", "", "")
	if err != nil || len(got) != 3 {
		t.Fatalf("expected 3 times without skip window, got %v (%v)", got, err)
	}
}

func TestExpiredIDs(t *testing.T) {
	now := time.Date(2024, 6, 10, 10, 5, 0, 0, time.UTC)
	slots := []model.Slot{
		slot("past", "2024-06-10", "09:00", true),
		slot("grace", "2024-06-10", "10:00", true),
		slot("future", "2024-06-10", "11:00", true),
	}
	got := ExpiredIDs(slots, now, 10*time.Minute)
	if !reflect.DeepEqual(got, []string{"past"}) {
		t.Fatalf("expected only past slot, got %v", got)
	}
}
