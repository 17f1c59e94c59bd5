package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Сущность тендерного проекта, одна строка на (tenant, id)
type TenderRecord struct {
	ID           string              `db:"id" json:"id"`
	TenantID     string              `db:"tenant_id" json:"-"`
	Title        string              `db:"title" json:"title"`
	Area         string              `db:"area" json:"area"`
	City         string              `db:"city" json:"city"`
	District     string              `db:"district" json:"district"`
	Buyer        string              `db:"buyer" json:"buyer"`
	BuyerClass   string              `db:"buyer_class" json:"buyerClass"`
	Industry     string              `db:"industry" json:"industry"`
	Subtype      string              `db:"subtype" json:"subtype"`
	Winner       string              `db:"winner" json:"winner"`
	BuyerTel     string              `db:"buyer_tel" json:"buyerTel"`
	BuyerPerson  string              `db:"buyer_person" json:"buyerPerson"`
	Agency       string              `db:"agency" json:"agency"`
	AgencyTel    string              `db:"agency_tel" json:"agencyTel"`
	AgencyPerson string              `db:"agency_person" json:"agencyPerson"`
	Site         string              `db:"site" json:"site"`
	Detail       string              `db:"detail" json:"detail"`
	PublishTime  int64               `db:"publish_time" json:"publishTime"`
	BidOpenTime  *int64              `db:"bid_open_time" json:"bidOpenTime"`
	BidEndTime   *int64              `db:"bid_end_time" json:"bidEndTime"`
	SignEndTime  *int64              `db:"sign_end_time" json:"signEndTime"`
	Budget       decimal.NullDecimal `db:"budget" json:"budget"`
	BidAmount    decimal.NullDecimal `db:"bid_amount" json:"bidAmount"`
	Meta         SourceMeta          `db:"source_meta" json:"sourceMeta,omitempty"`
	CreatedAt    time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time           `db:"updated_at" json:"updatedAt"`
}

// DateSource хранит исходный вид поля времени из загруженного файла
type DateSource struct {
	Original  string `json:"original"`
	Formatted string `json:"formatted,omitempty"`
}

// SourceMeta хранится как JSONB, ключи это JSON-имена полей времени
type SourceMeta map[string]DateSource

func (m SourceMeta) Value() (driver.Value, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *SourceMeta) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.New("source_meta: unsupported type")
	}
	if len(data) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(data, m)
}

// Имена колонок, допустимые в TenderQuery.Columns
const (
	ColID          = "id"
	ColTitle       = "title"
	ColArea        = "area"
	ColCity        = "city"
	ColIndustry    = "industry"
	ColDetail      = "detail"
	ColPublishTime = "publish_time"
	ColBidOpenTime = "bid_open_time"
	ColBudget      = "budget"
	ColBidAmount   = "bid_amount"
)

// TenderQuery выбирает записи арендатора, опубликованные в [From, To].
// Пустые Area/Industry (или "all") не фильтруют, пустой Columns выбирает все колонки
type TenderQuery struct {
	TenantID string
	From     int64
	To       int64
	Area     string
	Industry string
	Columns  []string
}

// ProjectFilter задает фильтры и страницу для списка проектов
type ProjectFilter struct {
	TenantID string
	From     int64
	To       int64
	Area     string
	Industry string
	Search   string
	Limit    int
	Offset   int
}

// FilterOptions перечисляет значения фильтров дашборда для арендатора
type FilterOptions struct {
	Industries []string  `json:"industries"`
	Areas      []string  `json:"areas"`
	DateRange  DateRange `json:"dateRange"`
}

type DateRange struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}
