package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"tenderlens/models"
)

type Storage struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{db: db, now: time.Now}
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Nullable текстовые колонки оборачиваются в COALESCE, чтобы сканироваться в string
var columnExpr = map[string]string{
	"id":            "id",
	"tenant_id":     "tenant_id",
	"title":         "title",
	"area":          "COALESCE(area, '') AS area",
	"city":          "COALESCE(city, '') AS city",
	"district":      "COALESCE(district, '') AS district",
	"buyer":         "COALESCE(buyer, '') AS buyer",
	"buyer_class":   "COALESCE(buyer_class, '') AS buyer_class",
	"industry":      "COALESCE(industry, '') AS industry",
	"subtype":       "COALESCE(subtype, '') AS subtype",
	"winner":        "COALESCE(winner, '') AS winner",
	"buyer_tel":     "COALESCE(buyer_tel, '') AS buyer_tel",
	"buyer_person":  "COALESCE(buyer_person, '') AS buyer_person",
	"agency":        "COALESCE(agency, '') AS agency",
	"agency_tel":    "COALESCE(agency_tel, '') AS agency_tel",
	"agency_person": "COALESCE(agency_person, '') AS agency_person",
	"site":          "COALESCE(site, '') AS site",
	"detail":        "COALESCE(detail, '') AS detail",
	"publish_time":  "publish_time",
	"bid_open_time": "bid_open_time",
	"bid_end_time":  "bid_end_time",
	"sign_end_time": "sign_end_time",
	"budget":        "budget",
	"bid_amount":    "bid_amount",
	"source_meta":   "source_meta",
	"created_at":    "created_at",
	"updated_at":    "updated_at",
}

var allColumns = []string{
	"id", "tenant_id", "title", "area", "city", "district", "buyer", "buyer_class", "industry",
	"subtype", "winner", "buyer_tel", "buyer_person", "agency", "agency_tel", "agency_person",
	"site", "detail", "publish_time", "bid_open_time", "bid_end_time", "sign_end_time",
	"budget", "bid_amount", "source_meta", "created_at", "updated_at",
}

// listColumns без detail, он может быть большим
var listColumns = []string{
	"id", "title", "area", "city", "district", "buyer", "industry", "winner", "agency",
	"publish_time", "bid_open_time", "budget", "bid_amount",
}

func selectList(columns []string) (string, error) {
	if len(columns) == 0 {
		columns = allColumns
	}
	exprs := make([]string, 0, len(columns))
	for _, c := range columns {
		expr, ok := columnExpr[c]
		if !ok {
			return "", fmt.Errorf("unknown column %q", c)
		}
		exprs = append(exprs, expr)
	}
	return strings.Join(exprs, ", "), nil
}

type whereBuilder struct {
	clauses []string
	args    []interface{}
}

func (w *whereBuilder) add(clause string, arg interface{}) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(clause, len(w.args)))
}

func (w *whereBuilder) String() string {
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func isFilterActive(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && v != "all"
}

func tenantWindow(tenantID string, from, to int64, area, industry string) *whereBuilder {
	w := &whereBuilder{}
	w.add("tenant_id = $%d", tenantID)
	if from != 0 || to != 0 {
		w.add("publish_time >= $%d", from)
		w.add("publish_time <= $%d", to)
	}
	if isFilterActive(area) {
		w.add("area = $%d", strings.TrimSpace(area))
	}
	if isFilterActive(industry) {
		w.add("industry = $%d", strings.TrimSpace(industry))
	}
	return w
}

// FetchTenders возвращает записи арендатора по запросу q. Фильтр по tenant_id
// применяется всегда, пустой TenantID отклоняется
func (s *Storage) FetchTenders(ctx context.Context, q models.TenderQuery) ([]models.TenderRecord, error) {
	if q.TenantID == "" {
		return nil, fmt.Errorf("fetch tenders: empty tenant id")
	}
	cols, err := selectList(q.Columns)
	if err != nil {
		return nil, fmt.Errorf("fetch tenders: %w", err)
	}
	where := tenantWindow(q.TenantID, q.From, q.To, q.Area, q.Industry)
	query := "SELECT " + cols + " FROM tender_project" + where.String() + " ORDER BY publish_time ASC, id ASC"

	records := []models.TenderRecord{}
	if err := s.db.SelectContext(ctx, &records, query, where.args...); err != nil {
		return nil, fmt.Errorf("fetch tenders: %w", err)
	}
	return records, nil
}

// ListTenders возвращает страницу проектов (новые первыми) и общее количество
func (s *Storage) ListTenders(ctx context.Context, f models.ProjectFilter) ([]models.TenderRecord, int, error) {
	if f.TenantID == "" {
		return nil, 0, fmt.Errorf("list tenders: empty tenant id")
	}
	where := tenantWindow(f.TenantID, f.From, f.To, f.Area, f.Industry)
	if search := strings.TrimSpace(f.Search); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		where.args = append(where.args, pattern)
		n := len(where.args)
		where.clauses = append(where.clauses, fmt.Sprintf(
			"(title ILIKE $%[1]d OR buyer ILIKE $%[1]d OR winner ILIKE $%[1]d OR agency ILIKE $%[1]d)", n))
	}

	var total int
	countQuery := "SELECT COUNT(1) FROM tender_project" + where.String()
	if err := s.db.GetContext(ctx, &total, countQuery, where.args...); err != nil {
		return nil, 0, fmt.Errorf("count tenders: %w", err)
	}

	cols, _ := selectList(listColumns)
	query := "SELECT " + cols + " FROM tender_project" + where.String() +
		fmt.Sprintf(" ORDER BY publish_time DESC, id ASC LIMIT %d OFFSET %d", f.Limit, f.Offset)

	records := []models.TenderRecord{}
	if err := s.db.SelectContext(ctx, &records, query, where.args...); err != nil {
		return nil, 0, fmt.Errorf("list tenders: %w", err)
	}
	return records, total, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// FilterOptions возвращает отрасли, регионы и диапазон дат публикации.
// Для арендатора без данных диапазон это последние 365 дней
func (s *Storage) FilterOptions(ctx context.Context, tenantID string) (*models.FilterOptions, error) {
	opts := &models.FilterOptions{Industries: []string{}, Areas: []string{}}

	query := `
        SELECT DISTINCT industry FROM tender_project
        WHERE tenant_id = $1 AND industry IS NOT NULL AND industry <> ''
        ORDER BY industry`
	if err := s.db.SelectContext(ctx, &opts.Industries, query, tenantID); err != nil {
		return nil, fmt.Errorf("filter industries: %w", err)
	}

	query = `
        SELECT DISTINCT area FROM tender_project
        WHERE tenant_id = $1 AND area IS NOT NULL AND area <> ''
        ORDER BY area`
	if err := s.db.SelectContext(ctx, &opts.Areas, query, tenantID); err != nil {
		return nil, fmt.Errorf("filter areas: %w", err)
	}

	var span struct {
		Min *int64 `db:"min_time"`
		Max *int64 `db:"max_time"`
	}
	query = `
        SELECT MIN(publish_time) AS min_time, MAX(publish_time) AS max_time
        FROM tender_project WHERE tenant_id = $1`
	if err := s.db.GetContext(ctx, &span, query, tenantID); err != nil {
		return nil, fmt.Errorf("filter date range: %w", err)
	}
	if span.Min == nil || span.Max == nil {
		now := s.now()
		opts.DateRange = models.DateRange{Min: now.AddDate(0, 0, -365).Unix(), Max: now.Unix()}
	} else {
		opts.DateRange = models.DateRange{Min: *span.Min, Max: *span.Max}
	}
	return opts, nil
}

// RecordError описывает запись, пропущенную при upsert
type RecordError struct {
	ID  string
	Err error
}

func (e RecordError) Error() string {
	return fmt.Sprintf("record %s: %v", e.ID, e.Err)
}

func (e RecordError) Unwrap() error {
	return e.Err
}

const upsertTender = `
        INSERT INTO tender_project (
            tenant_id, id, title, area, city, district, buyer, buyer_class, industry, subtype,
            winner, buyer_tel, buyer_person, agency, agency_tel, agency_person, site, detail,
            publish_time, bid_open_time, bid_end_time, sign_end_time, budget, bid_amount, source_meta
        ) VALUES (
            :tenant_id, :id, :title, :area, :city, :district, :buyer, :buyer_class, :industry, :subtype,
            :winner, :buyer_tel, :buyer_person, :agency, :agency_tel, :agency_person, :site, :detail,
            :publish_time, :bid_open_time, :bid_end_time, :sign_end_time, :budget, :bid_amount, :source_meta
        )
        ON CONFLICT (tenant_id, id) DO UPDATE SET
            title = EXCLUDED.title, area = EXCLUDED.area, city = EXCLUDED.city,
            district = EXCLUDED.district, buyer = EXCLUDED.buyer, buyer_class = EXCLUDED.buyer_class,
            industry = EXCLUDED.industry, subtype = EXCLUDED.subtype, winner = EXCLUDED.winner,
            buyer_tel = EXCLUDED.buyer_tel, buyer_person = EXCLUDED.buyer_person,
            agency = EXCLUDED.agency, agency_tel = EXCLUDED.agency_tel,
            agency_person = EXCLUDED.agency_person, site = EXCLUDED.site, detail = EXCLUDED.detail,
            publish_time = EXCLUDED.publish_time, bid_open_time = EXCLUDED.bid_open_time,
            bid_end_time = EXCLUDED.bid_end_time, sign_end_time = EXCLUDED.sign_end_time,
            budget = EXCLUDED.budget, bid_amount = EXCLUDED.bid_amount,
            source_meta = EXCLUDED.source_meta, updated_at = NOW()`

// UpsertTenders сохраняет записи арендатора в одной транзакции. Ошибочная запись
// откатывается до своего savepoint и попадает в отчет, остальные коммитятся
func (s *Storage) UpsertTenders(ctx context.Context, tenantID string, records []models.TenderRecord) (int, []RecordError, error) {
	if tenantID == "" {
		return 0, nil, fmt.Errorf("upsert tenders: empty tenant id")
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	var (
		saved  int
		failed []RecordError
	)
	for i := range records {
		rec := records[i]
		rec.TenantID = tenantID

		if _, err := tx.ExecContext(ctx, "SAVEPOINT tender_row"); err != nil {
			return 0, nil, fmt.Errorf("savepoint: %w", err)
		}
		if _, err := tx.NamedExecContext(ctx, upsertTender, rec); err != nil {
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT tender_row"); rbErr != nil {
				return 0, nil, fmt.Errorf("rollback savepoint: %w", rbErr)
			}
			failed = append(failed, RecordError{ID: rec.ID, Err: err})
			continue
		}
		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT tender_row"); err != nil {
			return 0, nil, fmt.Errorf("release savepoint: %w", err)
		}
		saved++
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("commit upsert: %w", err)
	}
	return saved, failed, nil
}
