package mock

//go:generate mockgen -destination blockdevice.go -package mock github.com/buildbarn/bb-disktest/pkg/blockdevice BlockDevice,Opener
//go:generate mockgen -destination clock.go -package mock github.com/buildbarn/bb-disktest/pkg/clock Clock,Ticker,Timer
//go:generate mockgen -destination util.go -package mock github.com/buildbarn/bb-disktest/pkg/util ErrorLogger
