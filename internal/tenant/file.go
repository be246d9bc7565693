package tenant

import "time"

// UploadedFile is a metadata record for a file a principal registered
// under a company. The bytes themselves live outside this service; the
// record tracks classification, ownership and expiry.
type UploadedFile struct {
	ID            int64      `json:"id"`
	CompanyID     int64      `json:"company_id"`
	CategoryID    *int64     `json:"category_id,omitempty"`
	UploaderGuard string     `json:"uploader_guard"`
	UploaderID    int64      `json:"uploader_id"`
	OriginalName  string     `json:"original_name"`
	StoredName    string     `json:"stored_name"`
	Path          string     `json:"path"`
	MimeType      string     `json:"mime_type"`
	Extension     string     `json:"extension,omitempty"`
	SizeBytes     int64      `json:"size"`
	FileType      string     `json:"file_type"`
	Description   string     `json:"description,omitempty"`
	DownloadCount int        `json:"download_count"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
}

// FileInput carries validated fields for registering a file record.
type FileInput struct {
	OriginalName string `json:"original_name" validate:"required,max=255"`
	StoredName   string `json:"stored_name" validate:"required,max=255"`
	Path         string `json:"path" validate:"required,max=1024"`
	MimeType     string `json:"mime_type" validate:"required,max=255"`
	Extension    string `json:"extension" validate:"omitempty,max=10"`
	SizeBytes    int64  `json:"size" validate:"gte=0"`
	FileType     string `json:"file_type" validate:"omitempty,oneof=invoice credit_note debit_note withholding purchase_settlement document signature logo other"`
	Description  string `json:"description" validate:"omitempty,max=1000"`
	CategoryID   *int64 `json:"category_id" validate:"omitempty,gt=0"`
}

// FileFilter narrows file listings.
type FileFilter struct {
	FileType       string
	ExcludeExpired bool
}

// FileCategory classifies uploaded files. Categories are global and
// shared across companies.
type FileCategory struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FileCategoryInput carries validated fields for a category.
type FileCategoryInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"omitempty,max=255"`
	IsActive    *bool  `json:"is_active" validate:"omitempty"`
}
