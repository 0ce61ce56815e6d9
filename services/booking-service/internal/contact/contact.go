package contact

import (
	"context"
	"strings"

	"github.com/lunalash/studio/services/booking-service/internal/model"
	"github.com/lunalash/studio/services/booking-service/internal/validation"
)

type Repository interface {
	Create(ctx context.Context, m model.ContactMessage) (model.ContactMessage, error)
	Get(ctx context.Context, id string) (model.ContactMessage, error)
	List(ctx context.Context, onlyRated bool, limit int) ([]model.ContactMessage, error)
	Update(ctx context.Context, m model.ContactMessage) (model.ContactMessage, error)
	Delete(ctx context.Context, id string) error
}

// Input is a message left by a client. Rating 0 means "no rating"; anything
// above 0 makes the message a public testimonial.
type Input struct {
	Name    string `json:"name" validate:"required,max=120"`
	Email   string `json:"email" validate:"required_without=Phone,omitempty,email"`
	Phone   string `json:"phone" validate:"required_without=Email,omitempty,phone"`
	Message string `json:"message" validate:"required,max=2000"`
	Rating  int    `json:"rating" validate:"gte=0,lte=5"`
}

const defaultTestimonialLimit = 20

type Service struct {
	repo     Repository
	validate *validation.Validator
}

func NewService(repo Repository, v *validation.Validator) *Service {
	return &Service{repo: repo, validate: v}
}

func (s *Service) Create(ctx context.Context, in Input) (model.ContactMessage, error) {
	in = normalize(in)
	if err := s.validate.Struct(in); err != nil {
		return model.ContactMessage{}, err
	}
	return s.repo.Create(ctx, model.ContactMessage{
		Name: in.Name, Email: in.Email, Phone: in.Phone, Message: in.Message, Rating: in.Rating,
	})
}

func (s *Service) List(ctx context.Context, limit int) ([]model.ContactMessage, error) {
	return s.repo.List(ctx, false, limit)
}

func (s *Service) Update(ctx context.Context, id string, in Input) (model.ContactMessage, error) {
	in = normalize(in)
	if err := s.validate.Struct(in); err != nil {
		return model.ContactMessage{}, err
	}
	return s.repo.Update(ctx, model.ContactMessage{
		ID: id, Name: in.Name, Email: in.Email, Phone: in.Phone, Message: in.Message, Rating: in.Rating,
	})
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Testimonials is the public view: rated messages, newest first, no contact details.
func (s *Service) Testimonials(ctx context.Context, limit int) ([]model.Testimonial, error) {
	if limit <= 0 || limit > 100 {
		limit = defaultTestimonialLimit
	}
	msgs, err := s.repo.List(ctx, true, limit)
	if err != nil {
		return nil, err
	}
	out := make([]model.Testimonial, 0, len(msgs))
	for _, m := range msgs {
		if !m.IsTestimonial() {
			continue
		}
		out = append(out, model.Testimonial{
			ID: m.ID, Name: firstName(m.Name), Message: m.Message, Rating: m.Rating, CreatedAt: m.CreatedAt,
		})
	}
	return out, nil
}

func firstName(name string) string {
	if f := strings.Fields(name); len(f) > 0 {
		return f[0]
	}
	return name
}

func normalize(in Input) Input {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	in.Message = strings.TrimSpace(in.Message)
	return in
}
