package cloud

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
)

// EnsureRole creates a service role with the given trust service, managed
// policies, and optional inline policy, reusing an existing role by name.
func (c *Client) EnsureRole(ctx context.Context, spec RoleSpec) (string, error) {
	existing, err := c.iamClient.GetRole(ctx, &iam.GetRoleInput{
		RoleName: aws.String(spec.Name),
	})
	if err == nil {
		return aws.ToString(existing.Role.Arn), nil
	}
	if !IsNotFound(err) {
		return "", fmt.Errorf("getting role %s: %w", spec.Name, err)
	}

	trustDoc := fmt.Sprintf(`{
  "Version": "2012-10-17",
  "Statement": [{
    "Effect": "Allow",
    "Principal": {"Service": "%s"},
    "Action": "sts:AssumeRole"
  }]
}`, spec.TrustService)

	created, err := c.iamClient.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 aws.String(spec.Name),
		AssumeRolePolicyDocument: aws.String(trustDoc),
	})
	if err != nil {
		if IsAlreadyExists(err) {
			return c.EnsureRole(ctx, spec)
		}
		return "", fmt.Errorf("creating role %s: %w", spec.Name, err)
	}

	for _, policyARN := range spec.ManagedPolicyARNs {
		_, err = c.iamClient.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
			RoleName:  aws.String(spec.Name),
			PolicyArn: aws.String(policyARN),
		})
		if err != nil {
			return "", fmt.Errorf("attaching %s to role %s: %w", policyARN, spec.Name, err)
		}
	}

	if spec.InlinePolicyDoc != "" {
		_, err = c.iamClient.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
			RoleName:       aws.String(spec.Name),
			PolicyName:     aws.String(spec.InlinePolicyName),
			PolicyDocument: aws.String(spec.InlinePolicyDoc),
		})
		if err != nil {
			return "", fmt.Errorf("putting inline policy on role %s: %w", spec.Name, err)
		}
	}

	return aws.ToString(created.Role.Arn), nil
}

// DeleteRole detaches managed policies, deletes inline policies, then
// deletes the role itself.
func (c *Client) DeleteRole(ctx context.Context, name string) error {
	attached, err := c.iamClient.ListAttachedRolePolicies(ctx, &iam.ListAttachedRolePoliciesInput{
		RoleName: aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("listing attached policies for role %s: %w", name, err)
	}
	for _, p := range attached.AttachedPolicies {
		_, err = c.iamClient.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
			RoleName:  aws.String(name),
			PolicyArn: p.PolicyArn,
		})
		if err != nil {
			return fmt.Errorf("detaching %s from role %s: %w", aws.ToString(p.PolicyArn), name, err)
		}
	}

	inline, err := c.iamClient.ListRolePolicies(ctx, &iam.ListRolePoliciesInput{
		RoleName: aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("listing inline policies for role %s: %w", name, err)
	}
	for _, policyName := range inline.PolicyNames {
		_, err = c.iamClient.DeleteRolePolicy(ctx, &iam.DeleteRolePolicyInput{
			RoleName:   aws.String(name),
			PolicyName: aws.String(policyName),
		})
		if err != nil {
			return fmt.Errorf("deleting inline policy %s from role %s: %w", policyName, name, err)
		}
	}

	_, err = c.iamClient.DeleteRole(ctx, &iam.DeleteRoleInput{
		RoleName: aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("deleting role %s: %w", name, err)
	}
	return nil
}
