package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stemsi/exstem-quiz/internal/model"
)

// Sentinel errors for question lookups.
var (
	ErrInvalidQuestion = errors.New("question number out of range")
	ErrImageNotFound   = errors.New("question image not found")
)

// QuestionView is one question as rendered on the exam screen.
type QuestionView struct {
	Number       int            `json:"number"`
	ImageURL     string         `json:"image_url,omitempty"`
	ImageWarning string         `json:"image_warning,omitempty"`
	Options      []model.Option `json:"options"`
	Selected     *model.Option  `json:"selected"`
}

// QuestionImageService resolves question images by convention <folder>/<n>.jpg.
type QuestionImageService struct {
	folder string
	total  int
}

// NewQuestionImageService creates a new QuestionImageService.
func NewQuestionImageService(folder string, total int) *QuestionImageService {
	return &QuestionImageService{folder: folder, total: total}
}

// Path returns the image file of question n (1-based) if it exists.
func (s *QuestionImageService) Path(n int) (string, error) {
	if n < 1 || n > s.total {
		return "", fmt.Errorf("%w: %d", ErrInvalidQuestion, n)
	}
	p := filepath.Join(s.folder, imageName(n))
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrImageNotFound, p)
	}
	return p, nil
}

// Questions renders every question with its image reference and the current
// selection. A missing image only adds a warning to that question.
func (s *QuestionImageService) Questions(answers []model.Option) []QuestionView {
	views := make([]QuestionView, s.total)
	for i := range views {
		n := i + 1
		v := QuestionView{Number: n, Options: model.Options}
		if _, err := s.Path(n); err != nil {
			v.ImageWarning = fmt.Sprintf("Image '%s' not found in folder '%s'", imageName(n), s.folder)
		} else {
			v.ImageURL = fmt.Sprintf("/api/v1/exam/questions/%d/image", n)
		}
		if i < len(answers) && answers[i].Answered() {
			sel := answers[i]
			v.Selected = &sel
		}
		views[i] = v
	}
	return views
}

func imageName(n int) string {
	return fmt.Sprintf("%d.jpg", n)
}
