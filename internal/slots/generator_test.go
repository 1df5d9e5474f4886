package slots

import (
	"reflect"
	"testing"
	"time"

	"consultorio/internal/model"
)

const drID = model.PractitionerID("dr-deboeck")

// 2026-01-15 is a Thursday.
const thursday = "2026-01-15"

func weekdays(start, end string) model.WeekSchedule {
	s := make(model.WeekSchedule)
	for d := time.Monday; d <= time.Friday; d++ {
		s[d] = model.WeekdayRule{Enabled: true, Start: start, End: end}
	}
	return s
}

func svc(duration int) model.Service {
	return model.Service{
		ID:              "consulta",
		Name:            "Consulta general",
		DurationMinutes: duration,
		Practitioner:    drID,
		IsActive:        true,
	}
}

func confirmed(date, start, end string) model.Appointment {
	return model.Appointment{
		Practitioner: drID,
		Date:         date,
		Start:        start,
		End:          end,
		Status:       model.StatusConfirmed,
	}
}

func TestAvailableSlots(t *testing.T) {
	tests := []struct {
		name         string
		schedule     model.WeekSchedule
		blocked      map[string]struct{}
		date         string
		service      model.Service
		appointments []model.Appointment
		want         []string
	}{
		{
			name:     "empty day full enumeration",
			schedule: weekdays("09:00", "11:00"),
			date:     thursday,
			service:  svc(30),
			want:     []string{"09:00", "09:30", "10:00", "10:30"},
		},
		{
			name:     "window exactly one duration wide",
			schedule: weekdays("09:00", "09:30"),
			date:     thursday,
			service:  svc(30),
			want:     []string{"09:00"},
		},
		{
			name:     "window one minute short of duration",
			schedule: weekdays("09:00", "09:29"),
			date:     thursday,
			service:  svc(30),
			want:     nil,
		},
		{
			name:     "duration longer than whole window",
			schedule: weekdays("09:00", "10:00"),
			date:     thursday,
			service:  svc(90),
			want:     nil,
		},
		{
			name:     "long service steps by 30 but last start must still fit",
			schedule: weekdays("09:00", "11:00"),
			date:     thursday,
			service:  svc(60),
			want:     []string{"09:00", "09:30", "10:00"},
		},
		{
			name:     "45 minute service not a multiple of step",
			schedule: weekdays("09:00", "10:30"),
			date:     thursday,
			service:  svc(45),
			// 09:45 end for 09:00 start, 10:15 for 09:30, 10:45 for 10:00 (does not fit)
			want: []string{"09:00", "09:30"},
		},
		{
			name:     "confirmed appointment removes colliding candidates",
			schedule: weekdays("09:00", "12:00"),
			date:     thursday,
			service:  svc(30),
			appointments: []model.Appointment{
				confirmed(thursday, "10:00", "11:00"),
			},
			want: []string{"09:00", "09:30", "11:00", "11:30"},
		},
		{
			name:     "touching endpoints do not collide",
			schedule: weekdays("09:00", "10:30"),
			date:     thursday,
			service:  svc(30),
			appointments: []model.Appointment{
				confirmed(thursday, "09:00", "09:30"),
			},
			want: []string{"09:30", "10:00"},
		},
		{
			name:     "cancelled appointment never blocks",
			schedule: weekdays("09:00", "10:00"),
			date:     thursday,
			service:  svc(30),
			appointments: []model.Appointment{
				{Practitioner: drID, Date: thursday, Start: "09:00", End: "09:30", Status: model.StatusCancelled},
			},
			want: []string{"09:00", "09:30"},
		},
		{
			name:     "appointment with missing end blocks a single step",
			schedule: weekdays("09:00", "10:30"),
			date:     thursday,
			service:  svc(30),
			appointments: []model.Appointment{
				{Practitioner: drID, Date: thursday, Start: "09:00", Status: model.StatusConfirmed},
			},
			want: []string{"09:30", "10:00"},
		},
		{
			name:     "appointment on another date ignored",
			schedule: weekdays("09:00", "10:00"),
			date:     thursday,
			service:  svc(30),
			appointments: []model.Appointment{
				confirmed("2026-01-16", "09:00", "10:00"),
			},
			want: []string{"09:00", "09:30"},
		},
		{
			name:     "disabled weekday yields empty",
			schedule: weekdays("09:00", "18:00"),
			date:     "2026-01-18", // Sunday
			service:  svc(30),
			want:     nil,
		},
		{
			name:     "blocked date yields empty regardless of weekday rule",
			schedule: weekdays("09:00", "18:00"),
			blocked:  map[string]struct{}{thursday: {}},
			date:     thursday,
			service:  svc(30),
			want:     nil,
		},
		{
			name:     "cross practitioner service yields empty",
			schedule: weekdays("09:00", "18:00"),
			date:     thursday,
			service: model.Service{
				ID:              "limpieza",
				DurationMinutes: 30,
				Practitioner:    "dr-rojas",
			},
			want: nil,
		},
		{
			name:     "malformed date yields empty",
			schedule: weekdays("09:00", "18:00"),
			date:     "15/01/2026",
			service:  svc(30),
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AvailableSlots(drID, tt.schedule, tt.blocked, tt.date, tt.service, tt.appointments, model.DefaultSlotMinutes)
			starts := StartTimes(got)
			if len(starts) == 0 {
				starts = nil
			}
			if !reflect.DeepEqual(starts, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, starts)
			}
		})
	}
}

func TestAvailableSlots_Idempotent(t *testing.T) {
	schedule := weekdays("09:00", "13:00")
	appts := []model.Appointment{confirmed(thursday, "10:00", "10:30")}

	first := AvailableSlots(drID, schedule, nil, thursday, svc(30), appts, 30)
	second := AvailableSlots(drID, schedule, nil, thursday, svc(30), appts, 30)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("two runs over identical input differ: %v vs %v", first, second)
	}
}

func TestAvailableSlots_StepSpacing(t *testing.T) {
	schedule := weekdays("09:00", "12:00")
	got := AvailableSlots(drID, schedule, nil, thursday, svc(30), nil, 30)

	for i := 1; i < len(got); i++ {
		prev, _ := model.MinutesOfDay(got[i-1].Start)
		cur, _ := model.MinutesOfDay(got[i].Start)
		if cur-prev < 30 {
			t.Errorf("slots %s and %s are closer than the step", got[i-1].Start, got[i].Start)
		}
	}
}

func TestAvailableSlots_NoOverlapWithLedger(t *testing.T) {
	schedule := weekdays("09:00", "14:00")
	appts := []model.Appointment{
		confirmed(thursday, "09:30", "10:15"),
		confirmed(thursday, "11:00", "12:00"),
		{Practitioner: drID, Date: thursday, Start: "13:00", Status: model.StatusConfirmed}, // damaged row
	}

	got := AvailableSlots(drID, schedule, nil, thursday, svc(45), appts, 30)
	for _, s := range got {
		start, _ := model.MinutesOfDay(s.Start)
		end, _ := model.MinutesOfDay(s.End)
		for i := range appts {
			if appts[i].Blocks(start, end) {
				t.Errorf("slot %s-%s overlaps appointment %s-%s", s.Start, s.End, appts[i].Start, appts[i].End)
			}
		}
	}
}

func TestAvailableDates(t *testing.T) {
	schedule := weekdays("09:00", "18:00") // Mon-Fri
	// 2026-01-14 is a Wednesday; enumeration starts the next day.
	from := time.Date(2026, 1, 14, 10, 30, 0, 0, time.UTC)

	blocked := map[string]struct{}{
		"2026-01-16": {}, // Friday blocked
	}

	got := AvailableDates(schedule, blocked, from, 7)
	want := []string{
		"2026-01-15", // Thu
		"2026-01-19", // Mon
		"2026-01-20", // Tue
		"2026-01-21", // Wed
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestAvailableDates_FromDateExclusive(t *testing.T) {
	schedule := weekdays("09:00", "18:00")
	from := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC) // Thursday, enabled

	got := AvailableDates(schedule, nil, from, 1)
	if len(got) != 1 || got[0] != "2026-01-16" {
		t.Errorf("enumeration must start the day after from, got %v", got)
	}
}

func TestAvailableDates_AllWeekdaysDisabled(t *testing.T) {
	got := AvailableDates(model.WeekSchedule{}, nil, time.Date(2026, 1, 14, 0, 0, 0, 0, time.UTC), 30)
	if len(got) != 0 {
		t.Errorf("expected no dates for an empty schedule, got %v", got)
	}
}
