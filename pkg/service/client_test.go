package service_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
	"golang.org/x/time/rate"

	"github.com/unithub/unithub-ble/mocks"
	"github.com/unithub/unithub-ble/pkg/codec"
	"github.com/unithub/unithub-ble/pkg/connection"
	"github.com/unithub/unithub-ble/pkg/connector/fake"
	"github.com/unithub/unithub-ble/pkg/device"
	"github.com/unithub/unithub-ble/pkg/protocol"
	"github.com/unithub/unithub-ble/pkg/service"
)

func key(s protocol.ServiceID, c protocol.CharacteristicID) string {
	return fake.Key(string(s), string(c))
}

func ptr[T any](v T) *T {
	return &v
}

var _ = Describe("Client", func() {
	var (
		ctx        context.Context
		peripheral *fake.Peripheral
		transport  *fake.Transport
		manager    *connection.Manager
		client     *service.Client
	)

	// do connects on first use so each test can adjust the peripheral beforehand.
	do := func(fn func(*connection.Link) error) error {
		if manager.State() != connection.StateConnected {
			Expect(manager.Connect(ctx, peripheral.ID)).To(Succeed())
		}
		return manager.Do(ctx, fn)
	}

	BeforeEach(func() {
		ctx = context.Background()
		peripheral = fake.UnitHub("AA:01", "UH_SN1")
		transport = fake.New(peripheral)
		manager = connection.New(transport)
		client = service.New(service.WithUploadRate(rate.Inf))
	})

	AfterEach(func() {
		Expect(manager.Close(ctx)).To(Succeed())
	})

	Describe("Read", func() {
		It("decodes measurement durations", func() {
			var durations *device.MeasurementDurations
			Expect(do(func(l *connection.Link) (err error) {
				durations, err = client.ReadMeasurementDurations(ctx, l)
				return err
			})).To(Succeed())
			Expect(*durations).To(Equal(device.MeasurementDurations{Gas: 45, GNSS: 60, Power: 15}))
		})

		It("decodes the LoRaWAN configuration", func() {
			var cfg *device.LoRaWANConfig
			Expect(do(func(l *connection.Link) (err error) {
				cfg, err = client.ReadLoRaWANConfig(ctx, l)
				return err
			})).To(Succeed())
			Expect(cfg.AppEUI).To(Equal("70B3D57ED0001234"))
			Expect(cfg.AppKey).To(Equal("2B7E151628AED2A6ABF7158809CF4F3C"))
			Expect(cfg.ValidSearchTimes).To(Equal(device.SearchWindow{StartHour: 8, EndHour: 18, EndMinute: 30}))
			Expect(cfg.SleepDuration).To(BeEquivalentTo(900))
			Expect(cfg.NetworkStatus).To(Equal(device.NetworkConnected))
		})

		It("skips characteristics the device does not expose", func() {
			var info *device.Info
			Expect(do(func(l *connection.Link) (err error) {
				info, err = client.ReadInfo(ctx, l)
				return err
			})).To(Succeed())
			Expect(info.ManufacturerName).To(Equal("Unit-Hub"))
			Expect(info.SystemID).To(Equal("0102030405060708"))
			Expect(info.IEEECertData).To(BeEmpty())
			Expect(transport.Reads()).NotTo(ContainElement(key(protocol.ServiceDeviceInformation, protocol.CharIEEECertData)))
		})

		It("decodes alarms and logs", func() {
			var (
				alarms  *device.Alarms
				logging *device.Logging
			)
			Expect(do(func(l *connection.Link) (err error) {
				if alarms, err = client.ReadAlarms(ctx, l); err != nil {
					return err
				}
				logging, err = client.ReadLogging(ctx, l)
				return err
			})).To(Succeed())
			Expect(alarms.Active.Gas()).To(BeTrue())
			Expect(alarms.Active.GNSS()).To(BeFalse())
			Expect(alarms.Active.Power()).To(BeTrue())
			Expect(alarms.History).To(HaveLen(1))
			Expect(alarms.History[0].Type).To(Equal(device.CategoryGas))
			Expect(logging.CurrentLogs).To(HaveLen(1))
			Expect(logging.AvailableLogFiles[0].Size).To(BeEquivalentTo(4096))
			Expect(logging.DownloadStatus).To(Equal(device.DownloadIdle))
		})

		It("keeps defaults for fields that fail to decode", func() {
			peripheral.Values[key(protocol.ServiceLoRaWAN, protocol.CharAppEUI)] = []byte{0x01, 0x02, 0x03}
			peripheral.Values[key(protocol.ServiceLoRaWAN, protocol.CharNetworkStatus)] = []byte{0x07}
			var cfg *device.LoRaWANConfig
			Expect(do(func(l *connection.Link) (err error) {
				cfg, err = client.ReadLoRaWANConfig(ctx, l)
				return err
			})).To(Succeed())
			Expect(cfg.AppEUI).To(BeEmpty())
			Expect(cfg.NetworkStatus).To(Equal(device.NetworkDisconnected))
			Expect(cfg.DevEUI).To(Equal("0004A30B001C0530"))
			Expect(cfg.SearchDuration).To(BeEquivalentTo(120))
		})

		It("fails when nothing can be read", func() {
			for _, c := range []protocol.CharacteristicID{protocol.CharGasDuration, protocol.CharGNSSDuration, protocol.CharPowerDuration} {
				transport.ReadErr[key(protocol.ServiceMeasurementDurations, c)] = fake.ErrATT
			}
			err := do(func(l *connection.Link) error {
				_, err := client.Read(ctx, l, protocol.ServiceMeasurementDurations)
				return err
			})
			Expect(err).To(MatchError(protocol.ErrServiceUnavailable))
			Expect(errors.Is(err, fake.ErrATT)).To(BeTrue())
		})

		It("applies a majority quorum when configured", func() {
			strict := service.New(service.WithQuorum(service.QuorumMajority))
			transport.ReadErr[key(protocol.ServiceMeasurementDurations, protocol.CharGasDuration)] = fake.ErrATT
			Expect(do(func(l *connection.Link) error {
				_, err := strict.Read(ctx, l, protocol.ServiceMeasurementDurations)
				return err
			})).To(Succeed())

			transport.ReadErr[key(protocol.ServiceMeasurementDurations, protocol.CharGNSSDuration)] = fake.ErrATT
			err := do(func(l *connection.Link) error {
				_, err := strict.Read(ctx, l, protocol.ServiceMeasurementDurations)
				return err
			})
			Expect(err).To(MatchError(protocol.ErrServiceUnavailable))
		})

		It("rejects services missing from the device", func() {
			for k := range peripheral.Values {
				if k[:4] == string(protocol.ServiceLogging) {
					delete(peripheral.Values, k)
				}
			}
			err := do(func(l *connection.Link) error {
				_, err := client.Read(ctx, l, protocol.ServiceLogging)
				return err
			})
			Expect(err).To(MatchError(protocol.ErrServiceUnavailable))
		})

		It("rejects unknown services", func() {
			err := do(func(l *connection.Link) error {
				_, err := client.Read(ctx, l, "1899")
				return err
			})
			Expect(err).To(MatchError(protocol.ErrServiceUnavailable))
		})

		It("requires a link", func() {
			var l *connection.Link
			_, err := client.Read(ctx, l, protocol.ServiceLoRaWAN)
			Expect(err).To(MatchError(protocol.ErrNotConnected))
			_, err = client.Read(ctx, nil, protocol.ServiceLoRaWAN)
			Expect(err).To(MatchError(protocol.ErrNotConnected))
		})

		It("does not read when the service is absent", func() {
			ctrl := gomock.NewController(GinkgoT())
			link := mocks.NewLink(ctrl)
			link.EXPECT().HasService(protocol.ServiceOTA).Return(false)
			_, err := client.Read(ctx, link, protocol.ServiceOTA)
			Expect(err).To(MatchError(protocol.ErrServiceUnavailable))
		})
	})

	Describe("Write", func() {
		It("writes only the supplied fields", func() {
			Expect(do(func(l *connection.Link) error {
				return client.Write(ctx, l, protocol.ServiceMeasurementDurations, &device.MeasurementDurationsPatch{Gas: ptr[uint16](45)})
			})).To(Succeed())
			Expect(transport.Writes()).To(Equal([]fake.Write{{
				DeviceID:     "AA:01",
				Key:          key(protocol.ServiceMeasurementDurations, protocol.CharGasDuration),
				Value:        []byte{0x2D, 0x00},
				WithResponse: true,
			}}))
		})

		It("writes a full LoRaWAN configuration", func() {
			cfg := &device.LoRaWANConfig{
				AppEUI:           "70:b3:d5:7e:d0:00:99:99",
				DevEUI:           "0004A30B001C0530",
				AppKey:           "2B7E151628AED2A6ABF7158809CF4F3C",
				SearchDuration:   60,
				ValidSearchTimes: device.SearchWindow{StartHour: 6, EndHour: 22},
				SleepDuration:    300,
				NetworkStatus:    device.NetworkSearching,
			}
			Expect(do(func(l *connection.Link) error {
				return client.Write(ctx, l, protocol.ServiceLoRaWAN, cfg)
			})).To(Succeed())
			Expect(transport.Writes()).To(HaveLen(6))
			v, _ := transport.Value("AA:01", string(protocol.ServiceLoRaWAN), string(protocol.CharAppEUI))
			Expect(v).To(Equal([]byte{0x70, 0xB3, 0xD5, 0x7E, 0xD0, 0x00, 0x99, 0x99}))
			v, _ = transport.Value("AA:01", string(protocol.ServiceLoRaWAN), string(protocol.CharValidSearchTimes))
			Expect(v).To(Equal(codec.EncodeUint32(device.SearchWindow{StartHour: 6, EndHour: 22}.Pack())))
		})

		It("validates every field before writing", func() {
			err := do(func(l *connection.Link) error {
				return client.Write(ctx, l, protocol.ServiceLoRaWAN, &device.LoRaWANConfigPatch{
					SleepDuration: ptr[uint16](60),
					AppKey:        ptr("not hex"),
				})
			})
			Expect(err).To(MatchError(protocol.ErrInvalidValue))
			Expect(transport.Writes()).To(BeEmpty())
		})

		It("rejects an invalid search window", func() {
			err := do(func(l *connection.Link) error {
				return client.Write(ctx, l, protocol.ServiceLoRaWAN, &device.LoRaWANConfigPatch{
					ValidSearchTimes: &device.SearchWindow{StartHour: 25},
				})
			})
			Expect(err).To(MatchError(protocol.ErrInvalidValue))
			Expect(transport.Writes()).To(BeEmpty())
		})

		It("rejects a record for another service", func() {
			err := do(func(l *connection.Link) error {
				return client.Write(ctx, l, protocol.ServiceLoRaWAN, &device.SystemControlPatch{BLEName: ptr("x")})
			})
			Expect(err).To(MatchError(protocol.ErrInvalidValue))
		})

		It("attempts every write and reports the failures together", func() {
			transport.WriteErr[key(protocol.ServiceMeasurementDurations, protocol.CharGNSSDuration)] = fake.ErrATT
			err := do(func(l *connection.Link) error {
				return client.Write(ctx, l, protocol.ServiceMeasurementDurations, &device.MeasurementDurations{Gas: 10, GNSS: 20, Power: 30})
			})
			Expect(err).To(MatchError(protocol.ErrWriteRejected))
			Expect(errors.Is(err, fake.ErrATT)).To(BeTrue())
			Expect(protocol.ShouldRetry(err)).To(BeTrue())
			Expect(transport.Writes()).To(HaveLen(3))
			v, _ := transport.Value("AA:01", string(protocol.ServiceMeasurementDurations), string(protocol.CharPowerDuration))
			Expect(v).To(Equal([]byte{30, 0}))
		})

		It("does nothing for an empty patch", func() {
			Expect(do(func(l *connection.Link) error {
				return client.Write(ctx, l, protocol.ServiceSystemControl, &device.SystemControlPatch{})
			})).To(Succeed())
			Expect(transport.Writes()).To(BeEmpty())
		})
	})

	Describe("System control", func() {
		It("triggers an instant send", func() {
			Expect(do(func(l *connection.Link) error {
				return client.TriggerInstantSend(ctx, l)
			})).To(Succeed())
			v, _ := transport.Value("AA:01", string(protocol.ServiceSystemControl), string(protocol.CharInstantSendTest))
			Expect(v).To(Equal([]byte{0x01}))
		})

		It("requests a factory reset", func() {
			Expect(do(func(l *connection.Link) error {
				return client.FactoryReset(ctx, l)
			})).To(Succeed())
			writes := transport.Writes()
			Expect(writes).To(HaveLen(1))
			Expect(writes[0].Key).To(Equal(key(protocol.ServiceSystemControl, protocol.CharFactoryReset)))
			Expect(writes[0].Value).To(Equal([]byte{0x01}))
		})
	})

	Describe("OTA", func() {
		It("sends the start command", func() {
			Expect(do(func(l *connection.Link) error {
				return client.StartOTA(ctx, l)
			})).To(Succeed())
			writes := transport.Writes()
			Expect(writes).To(HaveLen(1))
			Expect(writes[0].Key).To(Equal(key(protocol.ServiceOTA, protocol.CharOTAData)))
			Expect(writes[0].Value).To(Equal([]byte{0xA0}))
		})

		It("uploads an image in MTU-sized chunks", func() {
			image := make([]byte, 1000)
			for i := range image {
				image[i] = byte(i)
			}
			var reported []int
			Expect(do(func(l *connection.Link) error {
				return client.UploadFirmware(ctx, l, image, func(sent, total int) {
					Expect(total).To(Equal(1000))
					reported = append(reported, sent)
				})
			})).To(Succeed())
			Expect(reported).To(Equal([]int{244, 488, 732, 976, 1000}))
			var joined []byte
			for _, w := range transport.Writes() {
				Expect(len(w.Value)).To(BeNumerically("<=", 244))
				joined = append(joined, w.Value...)
			}
			Expect(joined).To(Equal(image))
		})

		It("rejects an empty image", func() {
			err := do(func(l *connection.Link) error {
				return client.UploadFirmware(ctx, l, nil, nil)
			})
			Expect(err).To(MatchError(protocol.ErrInvalidValue))
		})

		It("stops at the first rejected chunk", func() {
			ctrl := gomock.NewController(GinkgoT())
			link := mocks.NewLink(ctrl)
			link.EXPECT().HasService(protocol.ServiceOTA).Return(true)
			link.EXPECT().HasCharacteristic(protocol.ServiceOTA, protocol.CharOTAData).Return(true)
			link.EXPECT().MTU().Return(23)
			gomock.InOrder(
				link.EXPECT().Write(gomock.Any(), protocol.ServiceOTA, protocol.CharOTAData, make([]byte, 20), true).Return(nil),
				link.EXPECT().Write(gomock.Any(), protocol.ServiceOTA, protocol.CharOTAData, gomock.Any(), true).Return(fake.ErrATT),
			)
			err := client.UploadFirmware(ctx, link, make([]byte, 50), nil)
			Expect(err).To(MatchError(protocol.ErrWriteRejected))
		})
	})
})
