package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/HSouheill/barrim_mlm/models"
	"github.com/HSouheill/barrim_mlm/repositories"
	"github.com/HSouheill/barrim_mlm/utils"
)

const (
	maxReferralCodeAttempts = 10

	DefaultQRCodeSize = 256
	minQRCodeSize     = 64
	maxQRCodeSize     = 1024
)

// ReferralService hands out referral codes and the links built from them.
type ReferralService struct {
	directory repositories.ParticipantDirectory
	appURL    string
	generate  func() (string, error)
	log       logrus.FieldLogger
}

func NewReferralService(directory repositories.ParticipantDirectory, appURL string, log logrus.FieldLogger) *ReferralService {
	return &ReferralService{
		directory: directory,
		appURL:    appURL,
		generate:  utils.GenerateReferralCode,
		log:       log,
	}
}

// GetReferralLink returns the participant's code and registration link,
// assigning a fresh code on first use.
func (s *ReferralService) GetReferralLink(ctx context.Context, participantID string) (models.ReferralLink, error) {
	p, err := s.directory.GetParticipant(ctx, participantID)
	if err != nil {
		return models.ReferralLink{}, err
	}
	code := p.ReferralCode
	if code == "" {
		code, err = s.assignCode(ctx, participantID)
		if err != nil {
			return models.ReferralLink{}, err
		}
	}
	return models.ReferralLink{
		ReferralCode: code,
		ReferralLink: utils.BuildReferralLink(s.appURL, code),
	}, nil
}

func (s *ReferralService) assignCode(ctx context.Context, participantID string) (string, error) {
	for attempt := 1; attempt <= maxReferralCodeAttempts; attempt++ {
		code, err := s.generate()
		if err != nil {
			return "", fmt.Errorf("generate referral code: %w", err)
		}
		inUse, err := s.directory.ReferralCodeInUse(ctx, code)
		if err != nil {
			return "", err
		}
		if inUse {
			continue
		}
		assigned, err := s.directory.AssignReferralCode(ctx, participantID, code)
		if err != nil {
			// Lost a race for the same code.
			if errors.Is(err, models.ErrInvalidInput) {
				continue
			}
			return "", err
		}
		if assigned != code {
			// A concurrent call assigned a code first.
			return assigned, nil
		}
		s.log.WithFields(logrus.Fields{
			"participant_id": participantID,
			"attempt":        attempt,
		}).Info("referral code assigned")
		return code, nil
	}
	return "", fmt.Errorf("participant %s after %d attempts: %w", participantID, maxReferralCodeAttempts, models.ErrReferralCodeExhausted)
}

// GetReferralQRCode returns the referral link and a base64 PNG QR code of it.
func (s *ReferralService) GetReferralQRCode(ctx context.Context, participantID string, size int) (models.ReferralLink, string, error) {
	if size == 0 {
		size = DefaultQRCodeSize
	}
	if size < minQRCodeSize || size > maxQRCodeSize {
		return models.ReferralLink{}, "", fmt.Errorf("size must be between %d and %d, got %d: %w", minQRCodeSize, maxQRCodeSize, size, models.ErrInvalidInput)
	}
	link, err := s.GetReferralLink(ctx, participantID)
	if err != nil {
		return models.ReferralLink{}, "", err
	}
	png, err := utils.GenerateQRCodePNG(link.ReferralLink, size)
	if err != nil {
		return models.ReferralLink{}, "", fmt.Errorf("render QR code: %w", err)
	}
	return link, base64.StdEncoding.EncodeToString(png), nil
}
