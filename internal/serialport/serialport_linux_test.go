//go:build linux

package serialport

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestMakeRaw(t *testing.T) {
	t.Parallel()

	var in unix.Termios
	in.Lflag = unix.ICANON | unix.ECHO | unix.ISIG
	in.Iflag = unix.ICRNL | unix.IXON
	in.Oflag = unix.OPOST
	in.Cflag = unix.PARENB | unix.B9600

	out := makeRaw(in, unix.B115200)
	assert.Zero(t, out.Lflag&(unix.ICANON|unix.ECHO|unix.ISIG))
	assert.Zero(t, out.Iflag&(unix.ICRNL|unix.IXON))
	assert.Zero(t, out.Oflag&unix.OPOST)
	assert.Zero(t, out.Cflag&unix.PARENB)
	assert.Equal(t, uint32(unix.B115200), out.Cflag&unix.CBAUD)
	assert.Equal(t, uint32(unix.CS8), out.Cflag&unix.CSIZE)
	assert.Equal(t, uint8(1), out.Cc[unix.VMIN])
}

func TestBaudTable(t *testing.T) {
	t.Parallel()

	_, ok := baudRates[DefaultBaud]
	assert.True(t, ok)
	_, err := openPort("/dev/null", 31337)
	assert.ErrorIs(t, err, ErrUnsupportedBaud)
}

func TestNotATerminal(t *testing.T) {
	t.Parallel()

	_, err := openPort("/dev/null", DefaultBaud)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a terminal")
}

// openPTY returns the master side of a new pseudo terminal and the path of
// its slave.
func openPTY(t *testing.T) (*os.File, string) {
	t.Helper()
	master, err := os.OpenFile("/dev/ptmx", os.O_RDWR, 0)
	if err != nil {
		t.Skipf("no pty support: %v", err)
	}
	t.Cleanup(func() { _ = master.Close() })
	fd := int(master.Fd())
	if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPTLCK, 0); err != nil {
		t.Skipf("unlock pty: %v", err)
	}
	n, err := unix.IoctlGetInt(fd, unix.TIOCGPTN)
	if err != nil {
		t.Skipf("pty number: %v", err)
	}
	return master, fmt.Sprintf("/dev/pts/%d", n)
}

func TestOpenPTYRoundTrip(t *testing.T) {
	master, slave := openPTY(t)

	port, err := Open(context.Background(), Config{Device: slave}, nil)
	require.NoError(t, err)
	defer port.Close()
	assert.Equal(t, slave, port.Device())

	_, err = master.Write([]byte("1,2,3\n"))
	require.NoError(t, err)
	line, err := bufio.NewReader(port).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "1,2,3\n", line)

	_, err = port.Write([]byte("Predicted X: 0.5\n"))
	require.NoError(t, err)
	reply, err := bufio.NewReader(master).ReadString('\n')
	require.NoError(t, err)
	// OPOST is off on the slave, so no CR is inserted.
	assert.Equal(t, "Predicted X: 0.5\n", reply)
}

func TestCloseInterruptsRead(t *testing.T) {
	_, slave := openPTY(t)

	port, err := Open(context.Background(), Config{Device: slave}, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := port.Read(make([]byte, 16))
		done <- err
	}()
	require.NoError(t, port.Close())
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("read still blocked after close")
	}
	assert.NoError(t, port.Close())
}
