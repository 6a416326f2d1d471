package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/mautops/netops-gin/internal/model"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrDeviceNotFound 设备不存在
var ErrDeviceNotFound = errors.New("device not found")

// Registry 设备注册表,读多写少
// 配置了 redis 时单设备读取走短 TTL 缓存,写操作使缓存失效
type Registry struct {
	db     *gorm.DB
	cache  *redis.Client
	ttl    time.Duration
	logger *logrus.Entry
}

// New 创建设备注册表,cache 可为 nil
func New(db *gorm.DB, cache *redis.Client, ttl time.Duration, logger *logrus.Logger) *Registry {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Registry{
		db:     db,
		cache:  cache,
		ttl:    ttl,
		logger: logger.WithField("component", "registry"),
	}
}

func cacheKey(id int) string {
	return fmt.Sprintf("netops:device:%d", id)
}

// cachedDevice 缓存内部表示
// 设备密码在对外序列化时被剥离,缓存里必须显式携带
type cachedDevice struct {
	model.DeviceModel
	Password string `json:"password"`
}

// Get 按主键读取设备
func (r *Registry) Get(ctx context.Context, id int) (*model.DeviceModel, error) {
	if r.cache != nil {
		raw, err := r.cache.Get(ctx, cacheKey(id)).Result()
		if err == nil {
			var cached cachedDevice
			if err := json.Unmarshal([]byte(raw), &cached); err == nil {
				device := cached.DeviceModel
				device.Password = cached.Password
				return &device, nil
			}
		} else if err != redis.Nil {
			r.logger.WithError(err).Debug("device cache read failed, falling back to db")
		}
	}

	var device model.DeviceModel
	if err := r.db.WithContext(ctx).First(&device, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}

	r.fillCache(ctx, &device)
	return &device, nil
}

// GetByAddress 按管理地址读取设备
func (r *Registry) GetByAddress(ctx context.Context, address string) (*model.DeviceModel, error) {
	var device model.DeviceModel
	err := r.db.WithContext(ctx).Where("address = ?", address).First(&device).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}
	return &device, nil
}

// List 列出全部设备
func (r *Registry) List(ctx context.Context) ([]*model.DeviceModel, error) {
	var devices []*model.DeviceModel
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&devices).Error; err != nil {
		return nil, err
	}
	return devices, nil
}

// Create 登记新设备
func (r *Registry) Create(ctx context.Context, device *model.DeviceModel) error {
	if err := device.Validate(); err != nil {
		return err
	}
	now := time.Now()
	device.CreatedAt = now
	device.UpdatedAt = now
	return r.db.WithContext(ctx).Create(device).Error
}

// Update 更新设备字段,updates 中的零值字段不触碰
func (r *Registry) Update(ctx context.Context, id int, updates map[string]interface{}) (*model.DeviceModel, error) {
	var device model.DeviceModel
	if err := r.db.WithContext(ctx).First(&device, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}

	updates["updated_at"] = time.Now()
	if err := r.db.WithContext(ctx).Model(&device).Updates(updates).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).First(&device, id).Error; err != nil {
		return nil, err
	}

	r.invalidate(ctx, id)
	return &device, nil
}

// Delete 删除设备
func (r *Registry) Delete(ctx context.Context, id int) error {
	result := r.db.WithContext(ctx).Delete(&model.DeviceModel{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDeviceNotFound
	}
	r.invalidate(ctx, id)
	return nil
}

func (r *Registry) fillCache(ctx context.Context, device *model.DeviceModel) {
	if r.cache == nil {
		return
	}
	raw, err := json.Marshal(cachedDevice{DeviceModel: *device, Password: device.Password})
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, cacheKey(device.ID), raw, r.ttl).Err(); err != nil {
		r.logger.WithError(err).Debug("device cache write failed")
	}
}

func (r *Registry) invalidate(ctx context.Context, id int) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Del(ctx, cacheKey(id)).Err(); err != nil {
		r.logger.WithError(err).Debug("device cache invalidation failed")
	}
}
