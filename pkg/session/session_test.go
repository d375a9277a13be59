package session_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/time/rate"

	"github.com/unithub/unithub-ble/pkg/connection"
	"github.com/unithub/unithub-ble/pkg/connector/fake"
	"github.com/unithub/unithub-ble/pkg/device"
	"github.com/unithub/unithub-ble/pkg/protocol"
	"github.com/unithub/unithub-ble/pkg/service"
	"github.com/unithub/unithub-ble/pkg/session"
)

func drain(events <-chan session.Event) []session.Event {
	var out []session.Event
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, e)
		default:
			return out
		}
	}
}

var _ = Describe("Session", func() {
	var (
		ctx       context.Context
		hub       *fake.Peripheral
		transport *fake.Transport
		s         *session.Session
		clock     time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		hub = fake.UnitHub("AA:01", "UH_SN1")
		transport = fake.New(hub, fake.UnitHub("AA:02", "UH_SN2"))
		clock = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		s = session.New(transport,
			session.WithClock(func() time.Time { return clock }),
			session.WithServiceOptions(service.WithUploadRate(rate.Inf)),
		)
	})

	AfterEach(func() {
		Expect(s.Close(ctx)).To(Succeed())
	})

	Describe("scanning", func() {
		It("replaces the device list with each scan", func() {
			devices, err := s.Scan(ctx, 20*time.Millisecond)
			Expect(err).NotTo(HaveOccurred())
			Expect(devices).To(HaveLen(2))
			Expect(s.Devices()).To(Equal(devices))

			transport.ScanErr = errors.New("radio reset")
			_, err = s.Scan(ctx, 20*time.Millisecond)
			Expect(err).To(MatchError(protocol.ErrScanFailed))
			Expect(s.Devices()).To(BeEmpty())
		})

		It("returns copies of the device list", func() {
			_, err := s.Scan(ctx, 20*time.Millisecond)
			Expect(err).NotTo(HaveOccurred())
			devices := s.Devices()
			devices[0].Name = "changed"
			*devices[0].RSSI = 0
			Expect(s.Devices()[0].Name).To(Equal("UH_SN1"))
			Expect(*s.Devices()[0].RSSI).To(Equal(-58))
		})

		It("clears devices on request", func() {
			_, err := s.Scan(ctx, 20*time.Millisecond)
			Expect(err).NotTo(HaveOccurred())
			s.ClearDevices()
			Expect(s.Devices()).To(BeEmpty())
		})

		It("reports scanning while a scan runs", func() {
			go func() {
				defer GinkgoRecover()
				_, _ = s.Scan(ctx, time.Minute)
			}()
			Eventually(s.Scanning).Should(BeTrue())
			s.StopScan()
			Eventually(s.Scanning).Should(BeFalse())
		})

		It("refuses to scan while connected", func() {
			Expect(s.Connect(ctx, "AA:01")).To(Succeed())
			_, err := s.Scan(ctx, 20*time.Millisecond)
			Expect(err).To(MatchError(protocol.ErrBusy))
		})
	})

	Describe("snapshot", func() {
		It("is nil without a connection", func() {
			Expect(s.Snapshot()).To(BeNil())
		})

		It("starts empty and uses the scanned device", func() {
			_, err := s.Scan(ctx, 20*time.Millisecond)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Connect(ctx, "AA:01")).To(Succeed())
			snap := s.Snapshot()
			Expect(snap.Status).To(Equal(device.StatusConnected))
			Expect(snap.Device.Name).To(Equal("UH_SN1"))
			Expect(snap.Info).To(BeNil())
			Expect(snap.Durations).To(BeNil())
			Expect(s.Connected()).To(BeTrue())
		})

		It("merges successful reads", func() {
			Expect(s.Connect(ctx, "AA:01")).To(Succeed())
			durations, err := s.ReadMeasurementDurations(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(durations.Gas).To(BeEquivalentTo(45))

			snap := s.Snapshot()
			Expect(snap.Durations).To(Equal(durations))
			Expect(snap.LastSync).To(Equal(clock))
			Expect(snap.LoRaWAN).To(BeNil())
		})

		It("is not changed by failed reads", func() {
			Expect(s.Connect(ctx, "AA:01")).To(Succeed())
			for _, c := range []protocol.CharacteristicID{protocol.CharAlarmStatus, protocol.CharAlarmHistory} {
				transport.ReadErr[fake.Key(string(protocol.ServiceAlarms), string(c))] = fake.ErrATT
			}
			_, err := s.ReadAlarms(ctx)
			Expect(err).To(MatchError(protocol.ErrServiceUnavailable))
			Expect(s.Snapshot().Alarms).To(BeNil())
		})

		It("hands out independent copies", func() {
			Expect(s.Connect(ctx, "AA:01")).To(Succeed())
			_, err := s.ReadAlarms(ctx)
			Expect(err).NotTo(HaveOccurred())
			snap := s.Snapshot()
			snap.Alarms.History[0].Message = "edited"
			snap.Device.Name = "edited"
			Expect(s.Snapshot().Alarms.History[0].Message).To(Equal("CO2 above threshold"))
			Expect(s.Snapshot().Device.Name).NotTo(Equal("edited"))
		})

		It("is destroyed by Disconnect", func() {
			Expect(s.Connect(ctx, "AA:01")).To(Succeed())
			Expect(s.Refresh(ctx)).To(Succeed())
			Expect(s.Snapshot().LoRaWAN).NotTo(BeNil())
			Expect(s.Disconnect(ctx)).To(Succeed())
			Expect(s.Snapshot()).To(BeNil())
			Expect(s.Connected()).To(BeFalse())
		})

		It("keeps a read in flight from landing after Disconnect", func() {
			Expect(s.Connect(ctx, "AA:01")).To(Succeed())
			transport.OpDelay = 30 * time.Millisecond
			done := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				defer close(done)
				_, _ = s.ReadLoRaWANConfig(ctx)
			}()
			Eventually(func() int { return len(transport.Reads()) }).Should(BeNumerically(">", 0))
			Expect(s.Disconnect(ctx)).To(Succeed())
			Expect(s.Snapshot()).To(BeNil())
			Eventually(done).Should(BeClosed())
			Expect(s.Snapshot()).To(BeNil())
		})

		It("switches to the new device when connecting elsewhere", func() {
			Expect(s.Connect(ctx, "AA:01")).To(Succeed())
			_, err := s.ReadInfo(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Connect(ctx, "AA:02")).To(Succeed())
			snap := s.Snapshot()
			Expect(snap.Device.ID).To(Equal("AA:02"))
			Expect(snap.Info).To(BeNil())
			Expect(transport.LiveConnections()).To(Equal(1))
		})

		It("reports a failed connection", func() {
			transport.ConnectErr = errors.New("peer rejected")
			Expect(s.Connect(ctx, "AA:01")).To(MatchError(protocol.ErrConnectFailed))
			snap := s.Snapshot()
			Expect(snap).NotTo(BeNil())
			Expect(snap.Status).To(Equal(device.StatusFailed))
			Expect(s.State()).To(Equal(connection.StateIdle))
		})
	})

	Describe("refresh", func() {
		It("reads every service on the device", func() {
			Expect(s.Connect(ctx, "AA:01")).To(Succeed())
			Expect(s.Refresh(ctx)).To(Succeed())
			snap := s.Snapshot()
			Expect(snap.Info).NotTo(BeNil())
			Expect(snap.Durations).NotTo(BeNil())
			Expect(snap.LoRaWAN.NetworkStatus).To(Equal(device.NetworkConnected))
			Expect(snap.OTA.CurrentVersion).To(Equal("1.4.0"))
			Expect(snap.SystemControl.BLEName).To(Equal("UH_SN1"))
			Expect(snap.Alarms.Active.Gas()).To(BeTrue())
			Expect(snap.Logging.AvailableLogFiles).To(HaveLen(1))
		})

		It("reports failed services but keeps the rest", func() {
			Expect(s.Connect(ctx, "AA:01")).To(Succeed())
			for _, c := range []protocol.CharacteristicID{protocol.CharCurrentLogs, protocol.CharLogFiles, protocol.CharLogDownload} {
				transport.ReadErr[fake.Key(string(protocol.ServiceLogging), string(c))] = fake.ErrATT
			}
			err := s.Refresh(ctx)
			Expect(err).To(MatchError(protocol.ErrServiceUnavailable))
			snap := s.Snapshot()
			Expect(snap.Logging).To(BeNil())
			Expect(snap.Alarms).NotTo(BeNil())
		})

		It("needs a connection", func() {
			Expect(s.Refresh(ctx)).To(MatchError(protocol.ErrNotConnected))
			_, err := s.ReadInfo(ctx)
			Expect(err).To(MatchError(protocol.ErrNotConnected))
			Expect(s.WriteService(ctx, protocol.ServiceSystemControl, &device.SystemControlPatch{})).To(MatchError(protocol.ErrNotConnected))
			_, connects, _ := transport.Counts()
			Expect(connects).To(Equal(0))
		})
	})

	Describe("writes", func() {
		BeforeEach(func() {
			Expect(s.Connect(ctx, "AA:01")).To(Succeed())
		})

		It("writes durations", func() {
			gas := uint16(45)
			Expect(s.WriteMeasurementDurations(ctx, &device.MeasurementDurationsPatch{Gas: &gas})).To(Succeed())
			v, _ := transport.Value("AA:01", string(protocol.ServiceMeasurementDurations), string(protocol.CharGasDuration))
			Expect(v).To(Equal([]byte{0x2D, 0x00}))
		})

		It("renames the device", func() {
			Expect(s.SetBLEName(ctx, "UH_LOBBY")).To(Succeed())
			sys, err := s.ReadSystemControl(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(sys.BLEName).To(Equal("UH_LOBBY"))
			Expect(s.Snapshot().SystemControl.BLEName).To(Equal("UH_LOBBY"))
		})

		It("toggles occupancy detection", func() {
			Expect(s.SetOccupancyDetection(ctx, false)).To(Succeed())
			v, _ := transport.Value("AA:01", string(protocol.ServiceSystemControl), string(protocol.CharOccupancyDetection))
			Expect(v).To(Equal([]byte{0x00}))
		})

		It("updates the LoRaWAN keys", func() {
			key := "000102030405060708090A0B0C0D0E0F"
			Expect(s.WriteLoRaWANConfig(ctx, &device.LoRaWANConfigPatch{AppKey: &key})).To(Succeed())
			cfg, err := s.ReadLoRaWANConfig(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.AppKey).To(Equal(key))
		})

		It("runs system commands", func() {
			Expect(s.TriggerInstantSend(ctx)).To(Succeed())
			Expect(s.FactoryReset(ctx)).To(Succeed())
			Expect(transport.Writes()).To(HaveLen(2))
		})

		It("runs a firmware update", func() {
			Expect(s.StartOTA(ctx)).To(Succeed())
			var last int
			Expect(s.UploadFirmware(ctx, make([]byte, 600), func(sent, _ int) { last = sent })).To(Succeed())
			Expect(last).To(Equal(600))
			Expect(transport.Writes()).To(HaveLen(4))
		})
	})

	Describe("events", func() {
		It("publishes state changes and snapshot updates", func() {
			Expect(s.Connect(ctx, "AA:01")).To(Succeed())
			_, err := s.ReadInfo(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Disconnect(ctx)).To(Succeed())

			var kinds []session.EventKind
			var states []connection.State
			for _, e := range drain(s.Events()) {
				kinds = append(kinds, e.Kind)
				if e.Kind == session.EventState {
					states = append(states, e.State)
				}
			}
			Expect(kinds).To(ContainElement(session.EventSnapshot))
			Expect(states).To(Equal([]connection.State{
				connection.StateConnecting,
				connection.StateConnected,
				connection.StateDisconnecting,
				connection.StateIdle,
			}))
		})

		It("drops events instead of blocking", func() {
			small := session.New(transport, session.WithEventBuffer(1))
			defer small.Close(ctx)
			Expect(small.Connect(ctx, "AA:01")).To(Succeed())
			Expect(small.Disconnect(ctx)).To(Succeed())
			Expect(drain(small.Events())).To(HaveLen(1))
		})

		It("closes the channel on Close", func() {
			Expect(s.Close(ctx)).To(Succeed())
			Eventually(s.Events()).Should(BeClosed())
		})
	})
})
