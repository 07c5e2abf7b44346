package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/internal/models"
	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/pkg/config"
	appErrors "github.com/aquador-web-app/aqua-dor-connect-platform-sub003/pkg/errors"
	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/pkg/export"
	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/pkg/storage"
)

type exportEnrollmentReader interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
}

type exportPaymentReader interface {
	ListBetween(ctx context.Context, from, to time.Time) ([]models.Payment, error)
}

// ExportFormat selects the rendered output.
type ExportFormat string

// Supported export formats.
const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportResult describes a rendered report and its signed download token.
type ExportResult struct {
	JobID       string    `json:"job_id"`
	FileName    string    `json:"file_name"`
	RowCount    int       `json:"row_count"`
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ExportService renders admin reports to CSV or PDF, stores them on disk and
// hands back a signed, expiring download token.
type ExportService struct {
	enrollments exportEnrollmentReader
	payments    exportPaymentReader
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	store       *storage.LocalStorage
	signer      *storage.SignedURLSigner
	cfg         config.ExportsConfig
	logger      *zap.Logger
	now         func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(enrollments exportEnrollmentReader, payments exportPaymentReader, store *storage.LocalStorage, signer *storage.SignedURLSigner, cfg config.ExportsConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		enrollments: enrollments,
		payments:    payments,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		store:       store,
		signer:      signer,
		cfg:         cfg,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Enabled reports whether exports are configured.
func (s *ExportService) Enabled() bool {
	return s != nil && s.cfg.Enabled && s.store != nil && s.signer != nil
}

// ExportEnrollments renders the full enrollment report. Admin only; the
// handler enforces the role.
func (s *ExportService) ExportEnrollments(ctx context.Context, format ExportFormat, claims *models.JWTClaims) (*ExportResult, error) {
	if err := s.authorize(claims); err != nil {
		return nil, err
	}

	rows, _, err := s.enrollments.List(ctx, models.EnrollmentFilter{PageSize: 10000})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}

	dataset := export.Dataset{
		Headers: []string{"Student", "Class", "Level", "Status", "Payment", "Enrolled At", "Cancelled At"},
	}
	for _, e := range rows {
		cancelled := ""
		if e.CancelledAt != nil {
			cancelled = e.CancelledAt.Format(time.RFC3339)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Student":      e.StudentName,
			"Class":        e.ClassName,
			"Level":        e.ClassLevel,
			"Status":       string(e.Status),
			"Payment":      string(e.PaymentStatus),
			"Enrolled At":  e.EnrolledAt.Format(time.RFC3339),
			"Cancelled At": cancelled,
		})
	}

	return s.render(dataset, "enrollments", "Enrollment Report", format)
}

// ExportPayments renders payments created inside [from, to).
func (s *ExportService) ExportPayments(ctx context.Context, from, to time.Time, format ExportFormat, claims *models.JWTClaims) (*ExportResult, error) {
	if err := s.authorize(claims); err != nil {
		return nil, err
	}
	if !to.After(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date range end must be after start")
	}

	rows, err := s.payments.ListBetween(ctx, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payments")
	}

	dataset := export.Dataset{
		Headers: []string{"Session", "Amount", "Currency", "Status", "Paid At", "Created At"},
	}
	for _, p := range rows {
		paidAt := ""
		if p.PaidAt != nil {
			paidAt = p.PaidAt.Format(time.RFC3339)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Session":    p.SessionID,
			"Amount":     formatAmount(p.AmountCents),
			"Currency":   p.Currency,
			"Status":     string(p.Status),
			"Paid At":    paidAt,
			"Created At": p.CreatedAt.Format(time.RFC3339),
		})
	}

	return s.render(dataset, "payments", "Payment Report", format)
}

// Open resolves a signed download token to the stored file path.
func (s *ExportService) Open(token string) (string, error) {
	if !s.Enabled() {
		return "", appErrors.Clone(appErrors.ErrNotFound, "exports are disabled")
	}
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid download token")
	}
	return s.store.Path(relPath), nil
}

func (s *ExportService) authorize(claims *models.JWTClaims) error {
	if !s.Enabled() {
		return appErrors.Clone(appErrors.ErrNotFound, "exports are disabled")
	}
	if claims == nil || claims.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "admin role required")
	}
	return nil
}

func (s *ExportService) render(dataset export.Dataset, kind, title string, format ExportFormat) (*ExportResult, error) {
	var (
		payload []byte
		err     error
		ext     string
	)
	switch format {
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
		ext = "pdf"
	case ExportFormatCSV, "":
		payload, err = s.csv.Render(dataset)
		ext = "csv"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	jobID := uuid.NewString()
	fileName := fmt.Sprintf("%s/%s-%s.%s", kind, kind, s.now().Format("20060102-150405"), ext)
	if _, err := s.store.Save(fileName, payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(jobID, fileName)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}

	s.logger.Info("export rendered",
		zap.String("kind", kind),
		zap.String("file", fileName),
		zap.Int("rows", len(dataset.Rows)))

	return &ExportResult{
		JobID:       jobID,
		FileName:    fileName,
		RowCount:    len(dataset.Rows),
		DownloadURL: token,
		ExpiresAt:   expiresAt,
	}, nil
}

func formatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	whole := cents / 100
	frac := cents % 100
	return sign + strconv.FormatInt(whole, 10) + "." + fmt.Sprintf("%02d", frac)
}
