package model

import "time"

// InvoiceRecord — запись о nota fiscal, принадлежащая одному аккаунту.
type InvoiceRecord struct {
	// ID — UUID записи
	ID string
	// AccessKey — ключ доступа NF-e (44 цифры), уникальность не требуется
	AccessKey string
	// NFNumber — номер NF, произвольная строка
	NFNumber string
	// IssuerName — наименование эмитента
	IssuerName string
	// IssuerTaxID — CNPJ эмитента, пустая строка если не задан
	IssuerTaxID string
	// IssuanceDate — дата эмиссии (только календарная дата, UTC)
	IssuanceDate time.Time
	// TotalValue — сумма, неотрицательная
	TotalValue float64
	// PhotoURL — относительный путь вложения вида YYYY/MM/file.ext, nil если нет
	PhotoURL *string
	// OwnerUID — uid владельца, назначается при создании и не меняется
	OwnerUID  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OwnedBy сообщает, принадлежит ли запись субъекту uid.
func (r *InvoiceRecord) OwnedBy(uid string) bool {
	return uid != "" && r.OwnerUID == uid
}

// HasAttachment сообщает, есть ли у записи вложение.
func (r *InvoiceRecord) HasAttachment() bool {
	return r.PhotoURL != nil && *r.PhotoURL != ""
}
