package sequencer

import (
	"fmt"
	"strconv"

	"github.com/N-O-S-T/FactoryTestApp/internal/infrastructure/config"
	"github.com/N-O-S-T/FactoryTestApp/internal/routine"
)

// ConfigFrom builds the sequencer parameters from the application
// configuration.
func ConfigFrom(cfg *config.Config) (Config, error) {
	var offset uint64
	if cfg.Programmer.ImageOffset != "" {
		var err error
		offset, err = strconv.ParseUint(cfg.Programmer.ImageOffset, 0, 32)
		if err != nil {
			return Config{}, fmt.Errorf("parsing programmer.image_offset %q: %w", cfg.Programmer.ImageOffset, err)
		}
	}

	return Config{
		ErrorPolicy:      ErrorPolicy(cfg.Sequencer.ErrorPolicy),
		DetectPasses:     cfg.Sequencer.DetectPasses,
		FlashMode:        FlashMode(cfg.Programmer.FlashMode),
		TargetDevice:     cfg.Programmer.TargetDevice,
		SpeedKHz:         cfg.Programmer.SpeedKHz,
		TestImage:        cfg.Programmer.TestImage,
		ProductionImage:  cfg.Programmer.ProductionImage,
		ImageOffset:      uint32(offset),
		Output12VEnabled: cfg.Checks.Output12VEnabled,
		Radio: routine.RadioParams{
			ModuleID: cfg.Checks.Radio.ModuleID,
			Channel:  cfg.Checks.Radio.Channel,
			Power:    cfg.Checks.Radio.Power,
			RSSIMin:  cfg.Checks.Radio.RSSIMin,
			RSSIMax:  cfg.Checks.Radio.RSSIMax,
			Samples:  cfg.Checks.Radio.Samples,
		},
	}, nil
}
