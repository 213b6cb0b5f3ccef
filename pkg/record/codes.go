package record

import (
	"fmt"
	"strconv"
	"strings"
)

// EventCode identifies the kind of an Event.
type EventCode uint8

// Event codes
const (
	EventConfigurationChanged EventCode = 1
	EventNORClean             EventCode = 2
	EventCameraOn             EventCode = 10
	EventCameraPicture        EventCode = 11
	EventVideoStart           EventCode = 12
	EventVideoEnd             EventCode = 13
	EventCameraOff            EventCode = 14
	EventTimelapsePicture     EventCode = 15
	EventVideoMode            EventCode = 16
	EventPictureMode          EventCode = 17
	EventVideoInterrupted     EventCode = 18
	EventSDFormatted          EventCode = 19
	EventStateChanged         EventCode = 20
	EventLowAltitude          EventCode = 30
	EventMovementDetected     EventCode = 40
	EventBoot                 EventCode = 69
	EventI2CErrorReset        EventCode = 99
	EventSunriseGPIOChanged   EventCode = 100
	EventSunriseActivated     EventCode = 101
	EventPowerOff             EventCode = 200
)

var eventNames = map[EventCode]string{
	EventConfigurationChanged: "CONFIGURATION_CHANGED",
	EventNORClean:             "NOR_CLEAN",
	EventCameraOn:             "CAMERA_ON",
	EventCameraPicture:        "CAMERA_PICTURE",
	EventVideoStart:           "VIDEO_START",
	EventVideoEnd:             "VIDEO_END",
	EventCameraOff:            "CAMERA_OFF",
	EventTimelapsePicture:     "CAMERA_TIMELAPSE_PIC",
	EventVideoMode:            "VIDEOMODE",
	EventPictureMode:          "PICMODE",
	EventVideoInterrupted:     "VIDEO_INTERRUPTED",
	EventSDFormatted:          "SD_FORMATTED",
	EventStateChanged:         "STATE_CHANGED",
	EventLowAltitude:          "LOW_ALTITUDE",
	EventMovementDetected:     "MOVEMENT_DETECTED",
	EventBoot:                 "BOOT",
	EventI2CErrorReset:        "I2C_ERROR_RESET",
	EventSunriseGPIOChanged:   "SUNRISE_GPIO_CHANGED",
	EventSunriseActivated:     "SUNRISE_ACTIVATED",
	EventPowerOff:             "POWER_OFF",
}

func (c EventCode) String() string {
	if name, ok := eventNames[c]; ok {
		return name
	}
	return "EVENT_" + strconv.Itoa(int(c))
}

// ParseEventCode accepts either a numeric code or an event name.
func ParseEventCode(s string) (EventCode, error) {
	if n, err := strconv.ParseUint(s, 0, 8); err == nil {
		return EventCode(n), nil
	}
	name := strings.TrimPrefix(strings.ToUpper(s), "EVENT_")
	for code, str := range eventNames {
		if str == name {
			return code, nil
		}
	}
	return 0, fmt.Errorf("unknown event %q", s)
}

// FlightState is the top level state of the flight sequence.
type FlightState uint8

// Flight states
const (
	StateDebug FlightState = iota
	StateWaitForLaunch
	StateLaunch
	StateTimelapse
	StateLanding
	StateTimelapseLand
	StateRecovery
)

var stateNames = []string{
	"DEBUG",
	"WAITFORLAUNCH",
	"LAUNCH",
	"TIMELAPSE",
	"LANDING",
	"TIMELAPSE_LAND",
	"RECOVERY",
}

func (s FlightState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "STATE_" + strconv.Itoa(int(s))
}

// Switch bits in Telemetry.Switches.
const (
	SwitchCamera0 uint8 = 1 << iota
	SwitchCamera1
	SwitchCamera2
	SwitchCamera3
	_
	_
	SwitchSunrise
)

// Error flag bits in Telemetry.Errors.
const (
	ErrorBarometer uint16 = 1 << iota
	ErrorAccelerometer
	ErrorPower
	ErrorTemperature
	ErrorRTC
	_
	_
	_
	ErrorFRAMWrite
	ErrorNORWrite
	ErrorFRAMFull
	ErrorNORFull
	ErrorNORBusy
)
