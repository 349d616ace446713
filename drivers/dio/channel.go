package dio

import (
	"mcal-go/errcode"
	"mcal-go/regfile"
)

// Channel is a handle on one DIO channel.
type Channel struct {
	d  *Driver
	id ChannelID
}

func (d *Driver) Channel(id ChannelID) Channel { return Channel{d: d, id: id} }

func (c Channel) ID() ChannelID { return c.id }

func (c Channel) Level() bool { return c.d.ReadChannel(c.id) == High }

func (c Channel) SetLevel(high bool) error {
	if high {
		return c.d.WriteChannel(c.id, High)
	}
	return c.d.WriteChannel(c.id, Low)
}

func (c Channel) Toggle() bool { return c.d.FlipChannel(c.id) == High }

// Name renders ch as P<port><pin>, e.g. "PB12".
func Name(ch ChannelID) string {
	p := int(ch) / pinsPerPort
	if p >= len(Banks) {
		return "P?"
	}
	pin := int(ch) % pinsPerPort
	s := "P" + Banks[p].Name
	if pin >= 10 {
		return s + "1" + string(rune('0'+pin-10))
	}
	return s + string(rune('0'+pin))
}

// Parse is the inverse of Name.
func Parse(name string) (ChannelID, error) {
	bad := errcode.Wrap(errcode.InvalidChannel, "dio.Parse", name)
	if len(name) < 3 || len(name) > 4 || name[0] != 'P' {
		return 0, bad
	}
	port := -1
	for i, b := range Banks {
		if b.Name == name[1:2] {
			port = i
		}
	}
	if port < 0 {
		return 0, bad
	}
	pin := 0
	for _, c := range name[2:] {
		if c < '0' || c > '9' {
			return 0, bad
		}
		pin = pin*10 + int(c-'0')
	}
	if pin >= pinsPerPort || (len(name) == 4 && name[2] == '0') {
		return 0, bad
	}
	return ChannelID(port*pinsPerPort + pin), nil
}

// ConfigureOutput puts ch into 2 MHz push-pull output mode through CRL or
// CRH. It bypasses PORT for boards where DIO owns the pin.
func (d *Driver) ConfigureOutput(ch ChannelID) error {
	return d.configure(ch, 0x2)
}

// ConfigureInput puts ch into floating input mode.
func (d *Driver) ConfigureInput(ch ChannelID) error {
	return d.configure(ch, 0x4)
}

// ConfigureInputPull selects input with pull-up or pull-down. The F1 picks
// the direction from the output latch bit.
func (d *Driver) ConfigureInputPull(ch ChannelID, up bool) error {
	if err := d.configure(ch, 0x8); err != nil {
		return err
	}
	if up {
		return d.WriteChannel(ch, High)
	}
	return d.WriteChannel(ch, Low)
}

func (d *Driver) configure(ch ChannelID, nibble uint32) error {
	b, bit, err := d.channel(SIDWriteChannel, ch)
	if err != nil {
		return err
	}
	reg := b.Reg(regCRL)
	if bit >= 8 {
		reg = b.Reg(regCRH)
		bit -= 8
	}
	regfile.WriteField(d.regs, reg, bit*4, 4, nibble)
	return nil
}
