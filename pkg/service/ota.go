package service

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"github.com/unithub/unithub-ble/internal/log"
	"github.com/unithub/unithub-ble/pkg/device"
	"github.com/unithub/unithub-ble/pkg/protocol"
)

// attOverhead is the ATT header size subtracted from the MTU to get the usable write payload.
const attOverhead = 3

// Progress is called after each firmware chunk is acknowledged.
type Progress func(sent, total int)

// StartOTA writes the start-update command to the OTA data characteristic.
func (c *Client) StartOTA(ctx context.Context, link Link) error {
	log.Info("Requesting firmware update")
	return c.Write(ctx, link, protocol.ServiceOTA, &device.OTAPatch{Data: []byte{device.OTACommandStart}})
}

func (c *Client) chunkFor(mtu int) int {
	n := c.chunkSize
	if n <= 0 || n > MaxChunkSize {
		n = MaxChunkSize
	}
	if usable := mtu - attOverhead; usable > 0 && usable < n {
		n = usable
	}
	return n
}

// UploadFirmware streams image to the OTA data characteristic in chunks no larger than the link
// allows, paced by the upload rate. The device is expected to have accepted StartOTA first. The
// upload stops at the first rejected chunk.
func (c *Client) UploadFirmware(ctx context.Context, link Link, image []byte, progress Progress) error {
	if len(image) == 0 {
		return protocol.Wrap("upload", protocol.ErrInvalidValue, errors.New("empty firmware image")).At(protocol.ServiceOTA, protocol.CharOTAData)
	}
	if _, err := lookup("upload", link, protocol.ServiceOTA); err != nil {
		return err
	}
	if !link.HasCharacteristic(protocol.ServiceOTA, protocol.CharOTAData) {
		return protocol.Wrap("upload", protocol.ErrServiceUnavailable, errors.New("OTA data characteristic not found on device")).
			At(protocol.ServiceOTA, protocol.CharOTAData)
	}

	chunk := c.chunkFor(link.MTU())
	limiter := rate.NewLimiter(c.uploadRate, 1)
	log.Info("Uploading %d byte firmware image in %d byte chunks", len(image), chunk)
	for sent := 0; sent < len(image); {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		end := min(sent+chunk, len(image))
		if err := link.Write(ctx, protocol.ServiceOTA, protocol.CharOTAData, image[sent:end], true); err != nil {
			log.Warning("Firmware chunk at offset %d rejected: %s", sent, err)
			return protocol.Wrap("upload", protocol.ErrWriteRejected, err).At(protocol.ServiceOTA, protocol.CharOTAData)
		}
		sent = end
		if progress != nil {
			progress(sent, len(image))
		}
	}
	log.Info("Firmware image uploaded")
	return nil
}
