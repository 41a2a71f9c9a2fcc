package ssh

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/pkg/sftp"
)

// createSFTPClient opens an SFTP session on the connection. Close it when done.
func (c *SSHClient) createSFTPClient() (*sftp.Client, error) {
	sshClient, err := c.getClient()
	if err != nil {
		return nil, err
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return nil, &TransportError{
			Op:          "sftp-init",
			Err:         fmt.Errorf("failed to create SFTP client: %w", err),
			IsTemporary: true,
		}
	}
	return sftpClient, nil
}

// WriteFile creates or replaces a remote file.
func (c *SSHClient) WriteFile(ctx context.Context, remotePath string, data []byte, mode os.FileMode) error {
	return c.upload(ctx, bytes.NewReader(data), remotePath, mode)
}

// UploadFile copies a local file to the remote host.
func (c *SSHClient) UploadFile(ctx context.Context, localPath string, remotePath string, mode os.FileMode) error {
	localFile, err := os.Open(localPath)
	if err != nil {
		return &TransportError{
			Op:  "upload",
			Err: fmt.Errorf("failed to open local file: %w", err),
		}
	}
	defer localFile.Close()
	return c.upload(ctx, localFile, remotePath, mode)
}

func (c *SSHClient) upload(ctx context.Context, src io.Reader, remotePath string, mode os.FileMode) error {
	c.logger.WithField("remote", remotePath).Debug("uploading file")

	sftpClient, err := c.createSFTPClient()
	if err != nil {
		return err
	}
	defer sftpClient.Close()

	if err := sftpClient.MkdirAll(path.Dir(remotePath)); err != nil {
		return &TransportError{
			Op:  "upload",
			Err: fmt.Errorf("failed to create remote directory: %w", err),
		}
	}

	remoteFile, err := sftpClient.Create(remotePath)
	if err != nil {
		return &TransportError{
			Op:          "upload",
			Err:         fmt.Errorf("failed to create remote file: %w", err),
			IsTemporary: true,
		}
	}
	defer remoteFile.Close()

	if _, err := copyWithContext(ctx, remoteFile, src); err != nil {
		return &TransportError{
			Op:          "upload",
			Err:         fmt.Errorf("failed to write remote file: %w", err),
			IsTemporary: true,
		}
	}

	if err := remoteFile.Chmod(mode); err != nil {
		return &TransportError{
			Op:  "upload",
			Err: fmt.Errorf("failed to set permissions: %w", err),
		}
	}
	return nil
}

// Remove deletes a remote file.
func (c *SSHClient) Remove(ctx context.Context, remotePath string) error {
	sftpClient, err := c.createSFTPClient()
	if err != nil {
		return err
	}
	defer sftpClient.Close()

	if err := sftpClient.Remove(remotePath); err != nil {
		return &TransportError{
			Op:  "remove",
			Err: err,
		}
	}
	return nil
}

// copyWithContext copies data from src to dst while respecting context cancellation.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, err := src.Read(buf)
		if nr > 0 {
			nw, err := dst.Write(buf[0:nr])
			if nw > 0 {
				written += int64(nw)
			}
			if err != nil {
				return written, err
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return written, err
		}
	}

	return written, nil
}
