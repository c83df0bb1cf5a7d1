package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/grovi/internal/errs"
	"github.com/and161185/grovi/internal/export"
	"github.com/and161185/grovi/internal/geo"
	"github.com/and161185/grovi/internal/model"
	"github.com/and161185/grovi/internal/repository"
)

// MaxThumbnailBytes bounds a stored preview image (data URL length).
const MaxThumbnailBytes = 2 << 20

// Export is a rendered field download.
type Export struct {
	Filename    string
	ContentType string
	Data        []byte
}

// FieldService manages fields, their thumbnails and exports.
type FieldService interface {
	List(ctx context.Context, userID uuid.UUID) ([]model.Field, error)
	// Create validates the geometry and derives area and centroid.
	Create(ctx context.Context, userID uuid.UUID, in model.FieldInput) (model.Field, error)
	Get(ctx context.Context, userID, id uuid.UUID) (model.Field, error)
	// Update changes descriptive attributes only.
	Update(ctx context.Context, userID, id uuid.UUID, upd model.FieldUpdate) (model.Field, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	Thumbnail(ctx context.Context, userID, id uuid.UUID) (model.Thumbnail, error)
	SaveThumbnail(ctx context.Context, userID, id uuid.UUID, imageData string) (model.Thumbnail, error)
	// Export renders the field; formats other than kml report errs.ErrUnsupported.
	Export(ctx context.Context, userID, id uuid.UUID, format string) (Export, error)
}

type FieldServiceImpl struct {
	fields repository.FieldRepository
	thumbs repository.ThumbnailRepository
}

var _ FieldService = (*FieldServiceImpl)(nil)

// NewFieldService constructs FieldService.
func NewFieldService(fields repository.FieldRepository, thumbs repository.ThumbnailRepository) *FieldServiceImpl {
	return &FieldServiceImpl{fields: fields, thumbs: thumbs}
}

// List returns the user's fields.
func (s *FieldServiceImpl) List(ctx context.Context, userID uuid.UUID) ([]model.Field, error) {
	return s.fields.ListByUser(ctx, userID)
}

func checkPlantingDate(d string) error {
	if d == "" {
		return nil
	}
	if _, err := time.Parse("2006-01-02", d); err != nil {
		return fmt.Errorf("planting_date must be YYYY-MM-DD: %w", errs.ErrValidation)
	}
	return nil
}

// Create validates the input and stores a new field.
func (s *FieldServiceImpl) Create(ctx context.Context, userID uuid.UUID, in model.FieldInput) (model.Field, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return model.Field{}, fmt.Errorf("field name is required: %w", errs.ErrValidation)
	}
	if err := geo.ValidateArea(in.Geometry); err != nil {
		return model.Field{}, fmt.Errorf("geometry: %v: %w", err, errs.ErrValidation)
	}
	if err := checkPlantingDate(in.PlantingDate); err != nil {
		return model.Field{}, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return model.Field{}, err
	}
	c, _ := geo.Centroid(in.Geometry)
	f := model.Field{
		ID:             id,
		UserID:         userID,
		Name:           name,
		CropType:       in.CropType,
		Variety:        in.Variety,
		PlantingSeason: in.PlantingSeason,
		PlantingDate:   in.PlantingDate,
		Geometry:       in.Geometry,
		AreaM2:         geo.Area(in.Geometry),
		CentroidLat:    c.Lat(),
		CentroidLng:    c.Lng(),
		Address:        in.Address,
	}
	if err := s.fields.Create(ctx, &f); err != nil {
		return model.Field{}, err
	}
	return f, nil
}

// Get returns one field of the user.
func (s *FieldServiceImpl) Get(ctx context.Context, userID, id uuid.UUID) (model.Field, error) {
	f, err := s.fields.Get(ctx, userID, id)
	if err != nil {
		return model.Field{}, err
	}
	return *f, nil
}

// Update applies upd to the stored field.
func (s *FieldServiceImpl) Update(ctx context.Context, userID, id uuid.UUID, upd model.FieldUpdate) (model.Field, error) {
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return model.Field{}, fmt.Errorf("field name must not be empty: %w", errs.ErrValidation)
	}
	if upd.PlantingDate != nil {
		if err := checkPlantingDate(*upd.PlantingDate); err != nil {
			return model.Field{}, err
		}
	}
	f, err := s.fields.Get(ctx, userID, id)
	if err != nil {
		return model.Field{}, err
	}
	if upd.IsEmpty() {
		return *f, nil
	}
	upd.Apply(f)
	f.Name = strings.TrimSpace(f.Name)
	if err := s.fields.Update(ctx, f); err != nil {
		return model.Field{}, err
	}
	return *f, nil
}

// Delete removes a field of the user.
func (s *FieldServiceImpl) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return s.fields.Delete(ctx, userID, id)
}

// Thumbnail returns the stored preview of an owned field.
func (s *FieldServiceImpl) Thumbnail(ctx context.Context, userID, id uuid.UUID) (model.Thumbnail, error) {
	if _, err := s.fields.Get(ctx, userID, id); err != nil {
		return model.Thumbnail{}, err
	}
	t, err := s.thumbs.Get(ctx, id)
	if err != nil {
		return model.Thumbnail{}, err
	}
	return *t, nil
}

// SaveThumbnail replaces the preview of an owned field.
func (s *FieldServiceImpl) SaveThumbnail(ctx context.Context, userID, id uuid.UUID, imageData string) (model.Thumbnail, error) {
	if imageData == "" {
		return model.Thumbnail{}, fmt.Errorf("image_data is required: %w", errs.ErrValidation)
	}
	if len(imageData) > MaxThumbnailBytes {
		return model.Thumbnail{}, fmt.Errorf("image_data exceeds %d bytes: %w", MaxThumbnailBytes, errs.ErrValidation)
	}
	if _, err := s.fields.Get(ctx, userID, id); err != nil {
		return model.Thumbnail{}, err
	}
	t := model.Thumbnail{FieldID: id, ImageData: imageData}
	if err := s.thumbs.Upsert(ctx, &t); err != nil {
		return model.Thumbnail{}, err
	}
	return t, nil
}

// Export renders an owned field. Only KML is produced here.
func (s *FieldServiceImpl) Export(ctx context.Context, userID, id uuid.UUID, format string) (Export, error) {
	f, err := s.fields.Get(ctx, userID, id)
	if err != nil {
		return Export{}, err
	}
	base := export.SafeFilename(f.Name, "field_"+f.ID.String())
	switch strings.ToLower(format) {
	case "kml":
		return Export{Filename: base + ".kml", ContentType: export.KMLContentType, Data: []byte(export.KML(*f))}, nil
	case "shp", "gpkg":
		return Export{}, fmt.Errorf("%s export is not available on this server: %w", format, errs.ErrUnsupported)
	default:
		return Export{}, fmt.Errorf("unknown export format %q: %w", format, errs.ErrValidation)
	}
}
