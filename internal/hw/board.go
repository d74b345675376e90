package hw

import (
	"fmt"
	"sync"

	"gobot.io/x/gobot/v2/platforms/raspi"
)

// Board is the Raspberry Pi adaptor shared by every GPIO and I2C
// driver. It connects on first use so a rig made only of mock kinds
// never touches the hardware.
type Board struct {
	once    sync.Once
	adaptor *raspi.Adaptor
	err     error
}

func NewBoard() *Board { return &Board{} }

func (b *Board) Adaptor() (*raspi.Adaptor, error) {
	b.once.Do(func() {
		a := raspi.NewAdaptor()
		if err := a.Connect(); err != nil {
			b.err = fmt.Errorf("%w: connect raspi: %v", ErrHardware, err)
			return
		}
		b.adaptor = a
	})
	return b.adaptor, b.err
}

// Close releases the GPIO and I2C handles. It is a no-op if the board
// was never used.
func (b *Board) Close() error {
	if b.adaptor == nil {
		return nil
	}
	return b.adaptor.Finalize()
}
