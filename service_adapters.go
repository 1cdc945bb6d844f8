package main

import (
	"context"

	"go-fprint-manager/accounts"
	"go-fprint-manager/fprint"
	"go-fprint-manager/models"
)

// abstract interfaces for easier testing

type FingerprintService interface {
	DeviceInfo(ctx context.Context) (models.DeviceInfo, error)
	ListFingers(ctx context.Context, username string) ([]string, error)
	Enroll(ctx context.Context, username, finger string, status fprint.StatusFunc) error
	DeleteFinger(ctx context.Context, username, finger string) error
	DeleteAllFingers(ctx context.Context, username string) error
	ClearAll(ctx context.Context, usernames []string) error
}

type AccountsService interface {
	ListUsers(ctx context.Context) ([]models.UserOption, error)
}

// Production implementations

// fprintServiceImpl resolves the default device through the manager on every
// call, so the service follows the daemon when readers come and go.
type fprintServiceImpl struct {
	manager *fprint.Manager
}

func NewFprintService(manager *fprint.Manager) FingerprintService {
	return &fprintServiceImpl{manager: manager}
}

func (s *fprintServiceImpl) device(ctx context.Context) (*fprint.Device, error) {
	return s.manager.DefaultDevice(ctx)
}

func (s *fprintServiceImpl) DeviceInfo(ctx context.Context) (models.DeviceInfo, error) {
	device, err := s.device(ctx)
	if err != nil {
		return models.DeviceInfo{}, err
	}

	name, err := device.Name()
	if err != nil {
		return models.DeviceInfo{}, err
	}
	scanType, err := device.ScanType()
	if err != nil {
		return models.DeviceInfo{}, err
	}
	stages, err := device.NumEnrollStages()
	if err != nil {
		return models.DeviceInfo{}, err
	}
	if stages < 0 {
		stages = 0
	}
	return models.DeviceInfo{Name: name, ScanType: scanType, NumEnrollStages: stages}, nil
}

func (s *fprintServiceImpl) ListFingers(ctx context.Context, username string) ([]string, error) {
	device, err := s.device(ctx)
	if err != nil {
		return nil, err
	}
	return device.ListEnrolledFingers(ctx, username)
}

func (s *fprintServiceImpl) Enroll(ctx context.Context, username, finger string, status fprint.StatusFunc) error {
	device, err := s.device(ctx)
	if err != nil {
		return err
	}
	return device.Enroll(ctx, username, finger, status)
}

func (s *fprintServiceImpl) DeleteFinger(ctx context.Context, username, finger string) error {
	device, err := s.device(ctx)
	if err != nil {
		return err
	}
	return device.DeleteFinger(ctx, username, finger)
}

func (s *fprintServiceImpl) DeleteAllFingers(ctx context.Context, username string) error {
	device, err := s.device(ctx)
	if err != nil {
		return err
	}
	return device.DeleteEnrolledFingers(ctx, username)
}

func (s *fprintServiceImpl) ClearAll(ctx context.Context, usernames []string) error {
	device, err := s.device(ctx)
	if err != nil {
		return err
	}
	return device.ClearAll(ctx, usernames)
}

type accountsServiceImpl struct {
	client *accounts.Client
}

func NewAccountsService(client *accounts.Client) AccountsService {
	return &accountsServiceImpl{client: client}
}

func (s *accountsServiceImpl) ListUsers(ctx context.Context) ([]models.UserOption, error) {
	return s.client.ListUsers(ctx)
}
