package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/libohan-ha/BaiHe-sub001/internal/models"
	"github.com/libohan-ha/BaiHe-sub001/pkg/cache"
)

var ErrPersonaNotFound = errors.New("persona not found")

// PersonaService handles AI persona definitions and ownership lookups.
// Reads go through an in-memory TTL cache since the orchestrator hits
// this on every mention.
type PersonaService struct {
	db    *gorm.DB
	cache *cache.Cache
}

// NewPersonaService creates a new persona service
func NewPersonaService(db *gorm.DB) *PersonaService {
	return &PersonaService{
		db:    db,
		cache: cache.NewCache(),
	}
}

// CreatePersona creates a persona owned by the given user
func (s *PersonaService) CreatePersona(ownerID uint, req *models.CreatePersonaRequest) (*models.Persona, error) {
	persona := models.Persona{
		OwnerID:     ownerID,
		Name:        req.Name,
		Description: req.Description,
		Personality: req.Personality,
		ModelName:   req.ModelName,
		AvatarURL:   req.AvatarURL,
	}
	if err := s.db.Create(&persona).Error; err != nil {
		return nil, err
	}
	return &persona, nil
}

// GetPersona looks up a persona by id
func (s *PersonaService) GetPersona(id uint) (*models.Persona, error) {
	key := personaCacheKey(id)
	if cached, ok := s.cache.Get(key); ok {
		if persona, ok := cached.(*models.Persona); ok {
			return persona, nil
		}
	}

	var persona models.Persona
	if err := s.db.First(&persona, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPersonaNotFound
		}
		return nil, err
	}

	s.cache.Set(key, &persona)
	return &persona, nil
}

// ListPersonas returns the personas owned by a user
func (s *PersonaService) ListPersonas(ownerID uint) ([]models.Persona, error) {
	var personas []models.Persona
	err := s.db.Where("owner_id = ?", ownerID).Order("created_at ASC").Find(&personas).Error
	return personas, err
}

func personaCacheKey(id uint) string {
	return fmt.Sprintf("persona:%d", id)
}
