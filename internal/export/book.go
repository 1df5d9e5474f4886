package export

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"consultorio/internal/model"
)

// Store is the slice of storage the exporter reads from.
type Store interface {
	ListPractitioners(ctx context.Context) ([]model.Practitioner, error)
	ListAppointmentsRange(ctx context.Context, practitioner model.PractitionerID, from, to string) ([]model.Appointment, error)
	ListServices(ctx context.Context, practitioner model.PractitionerID) ([]model.Service, error)
}

// Exporter renders the appointment book as an Excel workbook, one sheet
// per practitioner.
type Exporter struct {
	store  Store
	writer func() ExcelWriter
	logger *zerolog.Logger
}

// NewExporter builds an exporter around a storage reader and a writer
// factory.
func NewExporter(store Store, writerFactory func() ExcelWriter, logger *zerolog.Logger) *Exporter {
	return &Exporter{store: store, writer: writerFactory, logger: logger}
}

var bookColumns = []string{
	"Fecha", "Inicio", "Fin", "Servicio", "Paciente", "Email", "Teléfono", "Estado", "Notas",
}

// WriteBook writes every practitioner's appointments within [from, to]
// inclusive to w.
func (e *Exporter) WriteBook(ctx context.Context, from, to string, w io.Writer) error {
	if _, err := model.ParseDate(from); err != nil {
		return fmt.Errorf("from date: %w", err)
	}
	if _, err := model.ParseDate(to); err != nil {
		return fmt.Errorf("to date: %w", err)
	}

	practitioners, err := e.store.ListPractitioners(ctx)
	if err != nil {
		return fmt.Errorf("list practitioners: %w", err)
	}
	if len(practitioners) == 0 {
		return fmt.Errorf("no active practitioners to export")
	}

	xw := e.writer()

	for _, p := range practitioners {
		if err := xw.AddSheet(p.Name); err != nil {
			return err
		}
		if err := xw.WriteHeader(bookColumns); err != nil {
			return err
		}

		serviceNames, err := e.serviceNames(ctx, p.ID)
		if err != nil {
			return err
		}

		appointments, err := e.store.ListAppointmentsRange(ctx, p.ID, from, to)
		if err != nil {
			return fmt.Errorf("list appointments for %s: %w", p.ID, err)
		}

		for _, a := range appointments {
			name, ok := serviceNames[a.ServiceID]
			if !ok {
				name = a.ServiceID
			}
			row := []interface{}{
				a.Date, a.Start, a.End, name, a.PatientName,
				a.PatientEmail, a.PatientPhone, string(a.Status), a.Notes,
			}
			if err := xw.WriteRow(row); err != nil {
				return err
			}
		}

		e.logger.Debug().
			Str("practitioner", string(p.ID)).
			Int("appointments", len(appointments)).
			Msg("sheet written")
	}

	return xw.Save(w)
}

func (e *Exporter) serviceNames(ctx context.Context, practitioner model.PractitionerID) (map[string]string, error) {
	services, err := e.store.ListServices(ctx, practitioner)
	if err != nil {
		return nil, fmt.Errorf("list services for %s: %w", practitioner, err)
	}
	names := make(map[string]string, len(services))
	for _, s := range services {
		names[s.ID] = s.Name
	}
	return names, nil
}

// Filename builds a download name like "agenda_2026-01-01_2026-01-31.xlsx".
func Filename(from, to string) string {
	return fmt.Sprintf("agenda_%s_%s.xlsx", from, to)
}
