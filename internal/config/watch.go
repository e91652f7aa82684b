package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"stratlab/internal/logger"
)

// Watch 监听配置文件变更，解析成功后回调新配置。
// 解析失败只记日志，当前配置保持不变。
func Watch(path string, onChange func(*Config)) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			logger.Warnf("[config] 热更新解析失败，沿用旧配置: %v", err)
			return
		}
		logger.Infof("[config] 配置已热更新: %s", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}
